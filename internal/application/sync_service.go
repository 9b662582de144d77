package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// DefaultSyncCooldown is the minimum gap between two manual syncs.
const DefaultSyncCooldown = 30 * time.Second

// SyncConfig configures the sync service.
type SyncConfig struct {
	Interval time.Duration // Periodic sync interval, 0 allows manual syncs only
	Cooldown time.Duration // Minimum gap between manual syncs
}

// SyncService keeps the registry in step with remote storage, periodically
// and on demand.
type SyncService struct {
	registry *PackageRegistry
	cfg      SyncConfig
	logger   *slog.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu         sync.Mutex // guards lastManual and nextSync
	lastManual time.Time
	nextSync   time.Time

	// Serializes registry syncs.
	syncMu sync.Mutex
}

// NewSyncService creates a new sync service.
func NewSyncService(registry *PackageRegistry, cfg SyncConfig, logger *slog.Logger) *SyncService {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultSyncCooldown
	}
	return &SyncService{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sync scheduler. Without an interval only manual
// syncs run.
func (s *SyncService) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.logger.Info("periodic sync disabled")
		return
	}
	s.logger.Info("starting sync service", "interval", s.cfg.Interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.scheduleNext()

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
			if _, err := s.sync(ctx); err != nil {
				s.logger.Error("sync failed", "error", err)
			}
			s.scheduleNext()
		}
	}
}

// Stop stops the scheduler and waits for a running sync to finish.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync runs a sync now. Within the cooldown of the previous manual
// sync it returns a RetryError wrapping ErrSyncRateLimited.
func (s *SyncService) TriggerSync(ctx context.Context) (domain.SyncResult, error) {
	s.mu.Lock()
	now := s.now()
	if wait := s.cfg.Cooldown - now.Sub(s.lastManual); !s.lastManual.IsZero() && wait > 0 {
		s.mu.Unlock()
		return domain.SyncResult{}, &domain.RetryError{After: wait, Err: domain.ErrSyncRateLimited}
	}
	s.lastManual = now
	s.mu.Unlock()

	return s.sync(ctx)
}

func (s *SyncService) sync(ctx context.Context) (domain.SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	stats, err := s.registry.Sync(ctx)
	if err != nil {
		return domain.SyncResult{}, err
	}

	result := domain.SyncResult{
		PackagesAdded:   stats.Added,
		PackagesUpdated: stats.Updated,
		PackagesRemoved: stats.Removed,
		PackagesTotal:   s.registry.PackageCount(),
		SyncedAt:        s.now(),
		NextScheduledAt: s.NextSync(),
	}
	s.logger.Info("sync completed",
		"added", result.PackagesAdded,
		"updated", result.PackagesUpdated,
		"removed", result.PackagesRemoved,
		"total", result.PackagesTotal,
	)
	return result, nil
}

func (s *SyncService) scheduleNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSync = s.now().Add(s.cfg.Interval)
}

// NextSync returns the time of the next scheduled sync, zero when periodic
// sync is off.
func (s *SyncService) NextSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.cfg.Interval
}
