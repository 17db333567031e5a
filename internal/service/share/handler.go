package share

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/publisher"
	"github.com/ifuryst/postshare/pkg/util"
)

// MaxShareErrorLength caps the publisher error stored on a failed post.
const MaxShareErrorLength = 2000

// Store is the persistence the handler needs. UpdateFields must apply all
// given columns in one atomic write.
type Store interface {
	GetPost(ctx context.Context, id uint) (*models.Post, error)
	// MarkShareStarted sets share_start_at only if it is unset and reports
	// whether this call won.
	MarkShareStarted(ctx context.Context, id uint, at time.Time) (bool, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
}

// OutcomeStatus is the result of one handler invocation.
type OutcomeStatus string

const (
	OutcomePublished  OutcomeStatus = "published"
	OutcomeIneligible OutcomeStatus = "ineligible"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeDuplicate  OutcomeStatus = "duplicate"
	OutcomeNotDue     OutcomeStatus = "not_due"
	OutcomeNotFound   OutcomeStatus = "not_found"
)

type Outcome struct {
	PostID    uint              `json:"post_id"`
	Status    OutcomeStatus     `json:"status"`
	Reason    Reason            `json:"reason,omitempty"`
	State     models.ShareState `json:"state,omitempty"`
	PublishID string            `json:"publish_id,omitempty"`
}

// Handler executes a due share request exactly once per post, no matter how
// many times the request is delivered.
type Handler struct {
	store     Store
	guard     *Guard
	publisher publisher.Publisher
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type HandlerOption func(*Handler)

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// WithPublishTimeout bounds a single publisher call. Zero means no bound.
func WithPublishTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = timeout
	}
}

func NewHandler(store Store, guard *Guard, pub publisher.Publisher, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:     store,
		guard:     guard,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle runs one execution attempt for the post.
//
// Ineligible posts complete without error. A publisher failure completes the
// post as failed and returns an error marked ErrPublisher. Store errors are
// returned as is so the substrate can redeliver.
func (h *Handler) Handle(ctx context.Context, postID uint) (Outcome, error) {
	outcome := Outcome{PostID: postID}
	logger := h.logger.With(zap.Uint("post_id", postID))

	post, err := h.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			logger.Error("Post does not exist")
			outcome.Status = OutcomeNotFound
			return outcome, err
		}
		return outcome, errors.Wrap(err, "load post")
	}

	if post.ShareStartAt != nil || post.ShareCompleteAt != nil {
		logger.Info("Share attempt already made, skipping",
			zap.String("state", string(StateOf(post))))
		outcome.Status = OutcomeDuplicate
		outcome.State = StateOf(post)
		return outcome, nil
	}

	now := h.now()
	if post.ShareAt != nil && now.Before(*post.ShareAt) {
		// Delivered for an earlier share time; the post was rescheduled since
		logger.Info("Share trigger fired before share time",
			zap.Time("share_at", *post.ShareAt))
		outcome.Status = OutcomeNotDue
		outcome.State = StateOf(post)
		return outcome, nil
	}

	won, err := h.store.MarkShareStarted(ctx, postID, now)
	if err != nil {
		return outcome, errors.Wrap(err, "mark share started")
	}
	if !won {
		logger.Info("Concurrent share attempt in progress, skipping")
		outcome.Status = OutcomeDuplicate
		outcome.State = models.ShareStateStarted
		return outcome, nil
	}

	// Evaluate what is stored now, not the snapshot taken before the start
	post, err = h.store.GetPost(ctx, postID)
	if err != nil {
		return outcome, errors.Wrap(err, "reload started post")
	}

	decision := h.guard.Evaluate(ctx, post)
	if !decision.Eligible {
		return h.completeIneligible(ctx, logger, post, decision.Reason)
	}

	logger.Info("Sharing post on LinkedIn", zap.String("content", util.Preview(post.Content, 80)))
	result, pubErr := h.publish(ctx, post, *decision.Credentials)
	if pubErr != nil {
		return h.completeFailed(ctx, logger, post, pubErr)
	}
	return h.completePublished(ctx, logger, post, result)
}

func (h *Handler) publish(ctx context.Context, post *models.Post, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.publisher.Publish(ctx, publisher.FromPost(post), creds)
	if err != nil {
		return nil, err
	}
	if result == nil || !result.Success {
		return nil, errors.New("platform did not confirm the post")
	}
	return result, nil
}

func (h *Handler) completeIneligible(ctx context.Context, logger *zap.Logger, post *models.Post, reason Reason) (Outcome, error) {
	now := h.now()
	outcome := Outcome{PostID: post.ID, Status: OutcomeIneligible, Reason: reason, State: models.ShareStateCompleted}

	err := h.store.UpdateFields(ctx, post.ID, map[string]interface{}{
		models.ColumnShareCompleteAt: now,
		models.ColumnShareState:      models.ShareStateCompleted,
	})
	if err != nil {
		return outcome, errors.Wrap(err, "record ineligible share")
	}

	logger.Info("Post does not require LinkedIn sharing", zap.String("reason", string(reason)))
	return outcome, nil
}

func (h *Handler) completeFailed(ctx context.Context, logger *zap.Logger, post *models.Post, pubErr error) (Outcome, error) {
	now := h.now()
	outcome := Outcome{PostID: post.ID, Status: OutcomeFailed, State: models.ShareStateFailed}

	logger.Error("Error sharing post on LinkedIn", zap.Error(pubErr))

	err := h.store.UpdateFields(ctx, post.ID, map[string]interface{}{
		models.ColumnShareCompleteAt: now,
		models.ColumnShareState:      models.ShareStateFailed,
		models.ColumnShareError:      util.Truncate(pubErr.Error(), MaxShareErrorLength),
	})
	if err != nil {
		// The attempt stays recorded as started; it will not be repeated.
		logger.Error("Failed to record share failure", zap.Error(err))
	}

	return outcome, errors.Mark(errors.Wrap(pubErr, "share on linkedin"), ErrPublisher)
}

func (h *Handler) completePublished(ctx context.Context, logger *zap.Logger, post *models.Post, result *publisher.PublishResult) (Outcome, error) {
	now := h.now()
	outcome := Outcome{
		PostID:    post.ID,
		Status:    OutcomePublished,
		State:     models.ShareStateCompleted,
		PublishID: result.PublishID,
	}

	err := h.store.UpdateFields(ctx, post.ID, map[string]interface{}{
		models.ColumnSharedAtLinkedIn: now,
		models.ColumnShareOnLinkedIn:  false,
		models.ColumnShareCompleteAt:  now,
		models.ColumnShareState:       models.ShareStateCompleted,
		models.ColumnShareError:       "",
	})
	if err != nil {
		logger.Error("Post shared but outcome not recorded",
			zap.String("publish_id", result.PublishID),
			zap.Error(err))
		return outcome, errors.Wrap(err, "record published share")
	}

	logger.Info("Post successfully shared on LinkedIn", zap.String("publish_id", result.PublishID))
	return outcome, nil
}
