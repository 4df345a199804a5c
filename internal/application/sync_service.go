package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited is returned when the sync API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// syncCooldown is the minimum delay between two manual sync triggers.
const syncCooldown = 30 * time.Second

// RateLimitError is returned for a manual trigger inside the cooldown.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Syncer synchronizes the store with a layer source.
type Syncer interface {
	Sync(ctx context.Context) (SyncStats, error)
	ImportedCount() int
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	LayersAdded     int       `json:"layers_added"`
	LayersUpdated   int       `json:"layers_updated"`
	LayersRemoved   int       `json:"layers_removed"`
	LayersFailed    int       `json:"layers_failed"`
	LayersTotal     int       `json:"layers_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncService runs periodic and manually triggered source syncs.
type SyncService struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	lastAPISync time.Time
	apiMutex    sync.Mutex

	// Serializes sync runs.
	syncOpMutex sync.Mutex

	nextSync time.Time
	syncMu   sync.RWMutex

	now func() time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(syncer Syncer, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		syncer:   syncer,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the periodic sync scheduler. A non-positive interval
// disables scheduled syncs.
func (s *SyncService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("scheduled sync disabled")
		return
	}
	s.logger.Info("starting sync service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(s.now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			if _, err := s.doSync(ctx); err != nil {
				s.logger.Error("sync failed", "error", err)
			}
			s.setNextSync(s.now().Add(s.interval))
		}
	}
}

// Stop gracefully stops the sync service. It is safe to call more than once.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync runs a sync immediately. Calls within the cooldown of the
// previous trigger return a *RateLimitError.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.apiMutex.Lock()
	defer s.apiMutex.Unlock()

	now := s.now()
	if !s.lastAPISync.IsZero() {
		if wait := syncCooldown - now.Sub(s.lastAPISync); wait > 0 {
			return SyncResult{}, &RateLimitError{RetryAfter: wait}
		}
	}
	s.lastAPISync = now

	return s.doSync(ctx)
}

// SyncNow runs a sync without rate limiting, used at startup.
func (s *SyncService) SyncNow(ctx context.Context) (SyncResult, error) {
	return s.doSync(ctx)
}

func (s *SyncService) doSync(ctx context.Context) (SyncResult, error) {
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	stats, err := s.syncer.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		LayersAdded:     stats.Added,
		LayersUpdated:   stats.Updated,
		LayersRemoved:   stats.Removed,
		LayersFailed:    stats.Failed,
		LayersTotal:     s.syncer.ImportedCount(),
		SyncedAt:        s.now(),
		NextScheduledAt: s.getNextSync(),
	}, nil
}

func (s *SyncService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

func (s *SyncService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
