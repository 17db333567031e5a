package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/share"
)

// ErrValidation marks input rejected before anything is persisted.
var ErrValidation = errors.New("validation failed")

// WarningEnqueueFailed is returned with a saved post whose trigger could not
// be enqueued. The reconciler picks the post up later.
const WarningEnqueueFailed = "post saved but share could not be scheduled yet; it will be retried"

// PostRepository persists posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id uint) (*models.Post, error)
}

type PostInput struct {
	UserID          uint       `json:"user_id" validate:"required"`
	Content         string     `json:"content" validate:"required"`
	ShareNow        *bool      `json:"share_now"`
	ShareAt         *time.Time `json:"share_at"`
	ShareOnLinkedIn bool       `json:"share_on_linkedin"`

	// SharedAtLinkedIn imports a post that was already published. It is only
	// written while the stored post has none.
	SharedAtLinkedIn *time.Time `json:"shared_at_linkedin"`
}

type PostResult struct {
	Post    *models.Post `json:"post"`
	Warning string       `json:"warning,omitempty"`
}

type PostService struct {
	posts    PostRepository
	guard    *share.Guard
	trigger  *share.Trigger
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPostService(posts PostRepository, guard *share.Guard, trigger *share.Trigger, logger *zap.Logger) *PostService {
	return &PostService{
		posts:    posts,
		guard:    guard,
		trigger:  trigger,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *PostService) Create(ctx context.Context, input PostInput) (*PostResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid post"), ErrValidation)
	}

	post := &models.Post{
		UserID:           input.UserID,
		Content:          input.Content,
		ShareNow:         input.ShareNow,
		ShareAt:          input.ShareAt,
		ShareState:       models.ShareStateNone,
		ShareOnLinkedIn:  input.ShareOnLinkedIn,
		SharedAtLinkedIn: input.SharedAtLinkedIn,
	}
	if err := s.check(ctx, post); err != nil {
		return nil, err
	}

	s.trigger.Prepare(post)
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("Post created", zap.Uint("post_id", post.ID), zap.Uint("user_id", post.UserID))
	return s.enqueue(ctx, post), nil
}

// Update replaces the editable fields of a post. A post whose share attempt
// already began keeps its share markers and is not scheduled again.
func (s *PostService) Update(ctx context.Context, id uint, input PostInput) (*PostResult, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.UserID == 0 {
		input.UserID = post.UserID
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid post"), ErrValidation)
	}
	if input.UserID != post.UserID {
		return nil, errors.Mark(errors.New("post owner cannot change"), ErrValidation)
	}

	post.Content = input.Content
	post.ShareNow = input.ShareNow
	post.ShareAt = input.ShareAt
	post.ShareOnLinkedIn = input.ShareOnLinkedIn
	if post.SharedAtLinkedIn == nil {
		post.SharedAtLinkedIn = input.SharedAtLinkedIn
	}
	if err := s.check(ctx, post); err != nil {
		return nil, err
	}

	s.trigger.Prepare(post)
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("Post updated", zap.Uint("post_id", post.ID))
	return s.enqueue(ctx, post), nil
}

func (s *PostService) Get(ctx context.Context, id uint) (*models.Post, error) {
	return s.posts.GetPost(ctx, id)
}

// check enforces the scheduling intent and, when sharing is requested, the
// eligibility rules known before the post is saved.
func (s *PostService) check(ctx context.Context, post *models.Post) error {
	if !post.HasSchedulingIntent() && !post.IsShared() {
		return share.ErrInvalidSchedulingIntent
	}

	if !post.ShareOnLinkedIn || post.IsShared() {
		return nil
	}
	decision := s.guard.Evaluate(ctx, post)
	switch decision.Reason {
	case share.ReasonTooShort:
		return errors.Mark(errors.Newf("content must be at least %d characters to share on LinkedIn", share.MinContentLength), ErrValidation)
	case share.ReasonNotConnected:
		return errors.Mark(errors.New("connect a LinkedIn account before sharing"), ErrValidation)
	}
	return nil
}

func (s *PostService) enqueue(ctx context.Context, post *models.Post) *PostResult {
	result := &PostResult{Post: post}
	if err := s.trigger.Enqueue(ctx, post); err != nil {
		s.logger.Warn("Share trigger not enqueued, leaving post pending",
			zap.Uint("post_id", post.ID),
			zap.Error(err))
		result.Warning = WarningEnqueueFailed
	}
	return result
}
