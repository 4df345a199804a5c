package application

import (
	"sync"

	"github.com/jobrunner/geolayers/internal/domain"
)

const subscriberBuffer = 16

// EventBus is a fan-out pub/sub for layer change events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[<-chan domain.LayerEvent]chan domain.LayerEvent
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[<-chan domain.LayerEvent]chan domain.LayerEvent)}
}

// Publish sends an event to all subscribers without blocking. Slow
// subscribers miss events.
func (b *EventBus) Publish(e domain.LayerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() <-chan domain.LayerEvent {
	ch := make(chan domain.LayerEvent, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown channels
// are ignored.
func (b *EventBus) Unsubscribe(ch <-chan domain.LayerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(sub)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
