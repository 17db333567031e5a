package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
)

const statsRetentionDays = 90

// ShareStatsRefresher is the part of MonitoringService the updater drives.
type ShareStatsRefresher interface {
	UpdateShareStats(ctx context.Context) (*models.ShareStats, error)
	CleanupOldData(ctx context.Context, daysToKeep int) error
}

// StatsUpdater snapshots the share pipeline on an interval and prunes old
// monitoring rows once per day.
type StatsUpdater struct {
	stats    ShareStatsRefresher
	logger   *zap.Logger
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once

	// last snapshot and the day old data was last pruned
	last        *models.ShareStats
	lastCleanup time.Time
}

func NewStatsUpdater(stats ShareStatsRefresher, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	return &StatsUpdater{
		stats:    stats,
		logger:   logger.Named("stats"),
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Starting stats updater", zap.Duration("interval", s.interval))
		s.refresh(ctx)
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()
}

func (s *StatsUpdater) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *StatsUpdater) refresh(ctx context.Context) {
	stats, err := s.stats.UpdateShareStats(ctx)
	if err != nil {
		s.logger.Error("Failed to update share stats", zap.Error(err))
		return
	}

	s.logger.Info("Share stats refreshed",
		zap.Time("date", stats.Date),
		zap.Int("pending", stats.PendingPosts),
		zap.Int("started", stats.StartedPosts),
		zap.Int("failed", stats.FailedPosts),
		zap.Int("shared_today", stats.SharedPosts),
		zap.Int("unresolved_errors", stats.UnresolvedError))

	if s.last != nil && stats.FailedPosts > s.last.FailedPosts {
		s.logger.Warn("New failed LinkedIn shares since last refresh",
			zap.Int("new_failures", stats.FailedPosts-s.last.FailedPosts))
	}
	s.last = stats

	if stats.Date.Equal(s.lastCleanup) {
		return
	}
	if err := s.stats.CleanupOldData(ctx, statsRetentionDays); err != nil {
		s.logger.Error("Failed to cleanup old monitoring data", zap.Error(err))
		return
	}
	s.lastCleanup = stats.Date
}
