package viewport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jobrunner/geolayers/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is the number of queued messages per session.
	sendBuffer = 64
)

var errQueueFull = fmt.Errorf("viewport send queue full: %w", domain.ErrUnavailable)

// Conn is the subset of *websocket.Conn used by a session.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is a viewport handle backed by one websocket client. Commands
// are queued to the client; GetZoom and GetCenter return the last view the
// client reported.
type Session struct {
	id     string
	conn   Conn
	send   chan ServerMessage
	logger *slog.Logger

	mu    sync.RWMutex
	state domain.ViewState

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session. initial is reported until the client sends
// its first moveend.
func NewSession(conn Conn, initial domain.ViewState, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		send:   make(chan ServerMessage, sendBuffer),
		logger: logger.With("session", id),
		state:  initial,
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// FitBounds asks the client to fit the view to bounds.
func (s *Session) FitBounds(bounds domain.Bounds, opts domain.FitOptions) error {
	return s.enqueue(ServerMessage{Type: TypeCommand, Command: CommandFitBounds, Bounds: &bounds, Options: &opts})
}

// SetView asks the client to center the view at zoom.
func (s *Session) SetView(center domain.LatLng, zoom float64) error {
	if err := s.enqueue(ServerMessage{Type: TypeCommand, Command: CommandSetView, Center: &center, Zoom: &zoom}); err != nil {
		return err
	}
	s.setState(domain.ViewState{Center: center, Zoom: zoom})
	return nil
}

// SetZoom asks the client to change the zoom level.
func (s *Session) SetZoom(zoom float64) error {
	if err := s.enqueue(ServerMessage{Type: TypeCommand, Command: CommandSetZoom, Zoom: &zoom}); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Zoom = zoom
	s.mu.Unlock()
	return nil
}

// GetZoom returns the last known zoom.
func (s *Session) GetZoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Zoom
}

// GetCenter returns the last known center.
func (s *Session) GetCenter() domain.LatLng {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Center
}

// Notify forwards a layer event to the client. Events are dropped when the
// queue is full.
func (s *Session) Notify(e domain.LayerEvent) {
	if err := s.enqueue(ServerMessage{Type: TypeLayer, Event: &e}); err != nil {
		s.logger.Debug("layer event dropped", "event", e.Type, "layer", e.LayerID, "error", err)
	}
}

func (s *Session) setState(v domain.ViewState) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

func (s *Session) enqueue(msg ServerMessage) error {
	select {
	case <-s.done:
		return domain.ErrViewportClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return domain.ErrViewportClosed
	default:
		return errQueueFull
	}
}

// Run serves the session until the client disconnects or ctx is done.
// onMessage receives every client message after the session has applied
// moveend updates.
func (s *Session) Run(ctx context.Context, onMessage func(ClientMessage)) {
	defer s.Close()

	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writePump(ctx) }()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	if err := s.enqueue(ServerMessage{Type: TypeHello, SessionID: s.id}); err != nil {
		s.logger.Debug("hello not queued", "error", err)
	}

	err := s.readPump(onMessage)
	s.Close()
	if werr := <-writeErr; werr != nil && !errors.Is(werr, domain.ErrViewportClosed) {
		s.logger.Debug("viewport write loop ended", "error", werr)
	}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("viewport read loop ended", "error", err)
	}
}

func (s *Session) readPump(onMessage func(ClientMessage)) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case TypeMoveEnd:
			s.mu.Lock()
			if msg.Center != nil {
				s.state.Center = *msg.Center
			}
			if msg.Zoom != nil {
				s.state.Zoom = *msg.Zoom
			}
			s.mu.Unlock()
		case TypeMounted:
		default:
			s.logger.Debug("unknown client message", "type", msg.Type)
			continue
		}
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return domain.ErrViewportClosed
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.Close()
				return fmt.Errorf("writing %s message: %w", msg.Type, err)
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close()
				return fmt.Errorf("writing ping: %w", err)
			}
		}
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session and closes the connection. It is safe to call
// more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
