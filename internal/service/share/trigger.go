package share

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/queue"
)

// EventPostScheduled names the deferred request emitted for a post.
const EventPostScheduled = "posts/post.scheduled"

// TriggerKey is the idempotency key of the deferred request for a post.
func TriggerKey(postID uint) string {
	return fmt.Sprintf("%s.%d", EventPostScheduled, postID)
}

// Trigger turns a persisted scheduling intent into a deferred request.
type Trigger struct {
	scheduler queue.Scheduler
	delays    DelayCalculator
	logger    *zap.Logger
	now       func() time.Time
}

type TriggerOption func(*Trigger)

// WithTriggerClock overrides the clock used for normalization and fire times.
func WithTriggerClock(now func() time.Time) TriggerOption {
	return func(t *Trigger) {
		t.now = now
	}
}

func NewTrigger(scheduler queue.Scheduler, delays DelayCalculator, logger *zap.Logger, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		scheduler: scheduler,
		delays:    delays,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ShouldEnqueue is true when the post carries a scheduling intent and no
// execution attempt has begun or finished.
func (t *Trigger) ShouldEnqueue(post *models.Post) bool {
	return IsRetriggerable(post)
}

// Prepare runs before the post is persisted. For a post that needs a trigger
// it pins share_at to now when sharing immediately and tags the post pending.
func (t *Trigger) Prepare(post *models.Post) bool {
	if !t.ShouldEnqueue(post) {
		return false
	}

	if post.ShareNow != nil && *post.ShareNow {
		now := t.now()
		post.ShareAt = &now
	}
	post.ShareState = models.ShareStatePending
	return true
}

// Enqueue hands the deferred request to the substrate. It runs after the post
// is committed; a failure leaves the post pending and re-triggerable.
func (t *Trigger) Enqueue(ctx context.Context, post *models.Post) error {
	if !t.ShouldEnqueue(post) {
		return nil
	}

	// Prepare pinned share_at for share-now posts, so every enqueue of the
	// same post yields the same fire time.
	base := t.now()
	if post.ShareNow != nil && *post.ShareNow && post.ShareAt != nil {
		base = *post.ShareAt
	}
	fireAt, err := t.delays.FireTime(base, post.ShareNow, post.ShareAt)
	if err != nil {
		return err
	}

	req := queue.Request{
		Key:     TriggerKey(post.ID),
		FireAt:  fireAt,
		Payload: queue.Payload{PostID: post.ID},
	}

	if err := t.scheduler.Schedule(ctx, req); err != nil {
		t.logger.Error("Failed to enqueue share trigger",
			zap.Uint("post_id", post.ID),
			zap.String("key", req.Key),
			zap.Time("fire_at", fireAt),
			zap.Error(err))
		err = errors.Mark(errors.Wrap(err, "schedule share trigger"), ErrEnqueueFailure)
		return errors.WithDetailf(err, "Key: %s", req.Key)
	}

	t.logger.Info("Share trigger enqueued",
		zap.Uint("post_id", post.ID),
		zap.String("key", req.Key),
		zap.Time("fire_at", fireAt))
	return nil
}
