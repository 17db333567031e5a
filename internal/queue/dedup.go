package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Ledger records which keys were handed to the wrapped scheduler.
type Ledger interface {
	Claim(ctx context.Context, key string, postID uint, fireAt, staleBefore time.Time) (bool, error)
	MarkSent(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Deduplicated forwards a request only when the ledger has no live claim on
// its key for the same fire time.
type Deduplicated struct {
	next       Scheduler
	ledger     Ledger
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewDeduplicated wraps next. A claim untouched for staleAfter may be taken
// again; zero keeps claims forever.
func NewDeduplicated(next Scheduler, ledger Ledger, staleAfter time.Duration, logger *zap.Logger) *Deduplicated {
	return &Deduplicated{
		next:       next,
		ledger:     ledger,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

func (d *Deduplicated) Schedule(ctx context.Context, req Request) error {
	var staleBefore time.Time
	if d.staleAfter > 0 {
		staleBefore = d.now().Add(-d.staleAfter)
	}

	claimed, err := d.ledger.Claim(ctx, req.Key, req.Payload.PostID, req.FireAt, staleBefore)
	if err != nil {
		return err
	}
	if !claimed {
		d.logger.Debug("Share trigger already scheduled", zap.String("key", req.Key))
		return nil
	}

	if err := d.next.Schedule(ctx, req); err != nil {
		if releaseErr := d.ledger.Release(ctx, req.Key); releaseErr != nil {
			d.logger.Error("Failed to release trigger claim",
				zap.String("key", req.Key),
				zap.Error(releaseErr))
		}
		return err
	}

	if err := d.ledger.MarkSent(ctx, req.Key); err != nil {
		d.logger.Warn("Failed to mark trigger sent", zap.String("key", req.Key), zap.Error(err))
	}
	return nil
}
