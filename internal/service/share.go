package service

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/queue"
	"github.com/ifuryst/postshare/internal/service/share"
)

const (
	MetricSharePublished  = "share_published"
	MetricShareFailed     = "share_failed"
	MetricShareIneligible = "share_ineligible"
	MetricShareDuplicate  = "share_duplicate"
	MetricShareNotDue     = "share_not_due"
)

// PostReader loads a post by id.
type PostReader interface {
	GetPost(ctx context.Context, id uint) (*models.Post, error)
}

// ShareService runs due share requests and reports their outcomes.
type ShareService struct {
	handler *share.Handler
	trigger *share.Trigger
	posts   PostReader
	monitor Monitor
	logger  *zap.Logger
}

func NewShareService(handler *share.Handler, trigger *share.Trigger, posts PostReader, monitor Monitor, logger *zap.Logger) *ShareService {
	return &ShareService{
		handler: handler,
		trigger: trigger,
		posts:   posts,
		monitor: monitor,
		logger:  logger,
	}
}

// Execute runs one execution attempt for the post. A request that arrives
// before the post's share time is scheduled again.
func (s *ShareService) Execute(ctx context.Context, postID uint) (share.Outcome, error) {
	outcome, err := s.handler.Handle(ctx, postID)
	s.record(outcome, err)

	if outcome.Status == share.OutcomeNotDue {
		if rerr := s.reschedule(ctx, postID); rerr != nil {
			return outcome, rerr
		}
	}
	return outcome, err
}

// Dispatch adapts Execute to a delivery substrate. Terminal errors are
// acknowledged; anything else asks for redelivery.
func (s *ShareService) Dispatch(ctx context.Context, payload queue.Payload) error {
	_, err := s.Execute(ctx, payload.PostID)
	if err != nil && share.IsTerminal(err) {
		return nil
	}
	return err
}

func (s *ShareService) reschedule(ctx context.Context, postID uint) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return errors.Wrap(err, "reload post for reschedule")
	}
	return s.trigger.Enqueue(ctx, post)
}

func (s *ShareService) record(outcome share.Outcome, err error) {
	tags := map[string]interface{}{
		"platform": models.ProviderLinkedIn,
		"post_id":  outcome.PostID,
	}

	var metric string
	switch outcome.Status {
	case share.OutcomePublished:
		metric = MetricSharePublished
	case share.OutcomeFailed:
		metric = MetricShareFailed
	case share.OutcomeIneligible:
		metric = MetricShareIneligible
		tags["reason"] = string(outcome.Reason)
	case share.OutcomeDuplicate:
		metric = MetricShareDuplicate
	case share.OutcomeNotDue:
		metric = MetricShareNotDue
	}
	if metric != "" {
		if merr := s.monitor.RecordMetric(metric, "counter", 1, tags); merr != nil {
			s.logger.Warn("Failed to record metric", zap.String("metric", metric), zap.Error(merr))
		}
	}

	if err == nil {
		return
	}

	title := "Share execution failed"
	switch {
	case errors.Is(err, share.ErrPublisher):
		title = "Failed to share post on LinkedIn"
	case errors.Is(err, share.ErrPostNotFound):
		title = "Share trigger for missing post"
	}
	options := []ErrorLogOption{
		WithPlatform(models.ProviderLinkedIn),
		WithContext(map[string]interface{}{
			"status":   string(outcome.Status),
			"terminal": share.IsTerminal(err),
		}),
	}
	if outcome.Status != share.OutcomeNotFound {
		options = append(options, WithPost(outcome.PostID))
	}
	if !share.IsTerminal(err) {
		options = append(options, WithStackTrace(fmt.Sprintf("%+v", err)))
	}
	if rerr := s.monitor.RecordError("ERROR", "handler", title, err.Error(), options...); rerr != nil {
		s.logger.Warn("Failed to record error log", zap.Error(rerr))
	}
}
