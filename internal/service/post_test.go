package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/share"
)

func TestPostService_CreateShareNow(t *testing.T) {
	p := newTestPipeline()

	result, err := p.postSvc.Create(context.Background(), PostInput{
		UserID:          7,
		Content:         "Hello LinkedIn, this is a post.",
		ShareNow:        boolPtr(true),
		ShareOnLinkedIn: true,
	})

	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Equal(t, models.ShareStatePending, result.Post.ShareState)
	require.NotNil(t, result.Post.ShareAt)
	assert.Equal(t, testNow, *result.Post.ShareAt)

	require.Len(t, p.scheduler.requests, 1)
	req := p.scheduler.requests[0]
	assert.Equal(t, share.TriggerKey(result.Post.ID), req.Key)
	assert.Equal(t, testNow.Add(10*time.Second), req.FireAt)
}

func TestPostService_CreateShareAt(t *testing.T) {
	p := newTestPipeline()
	shareAt := testNow.Add(24 * time.Hour)

	result, err := p.postSvc.Create(context.Background(), PostInput{
		UserID:          7,
		Content:         "Tomorrow's announcement",
		ShareAt:         &shareAt,
		ShareOnLinkedIn: true,
	})

	require.NoError(t, err)
	require.Len(t, p.scheduler.requests, 1)
	assert.Equal(t, shareAt.Add(45*time.Second), p.scheduler.requests[0].FireAt)
	assert.Equal(t, models.ShareStatePending, p.posts.get(result.Post.ID).ShareState)
}

func TestPostService_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		input PostInput
		check func(t *testing.T, err error)
	}{
		{
			name:  "missing content",
			input: PostInput{UserID: 7, ShareNow: boolPtr(true)},
			check: func(t *testing.T, err error) { assert.True(t, errors.Is(err, ErrValidation)) },
		},
		{
			name:  "no scheduling intent",
			input: PostInput{UserID: 7, Content: "Hello world", ShareNow: boolPtr(false)},
			check: func(t *testing.T, err error) { assert.True(t, errors.Is(err, share.ErrInvalidSchedulingIntent)) },
		},
		{
			name:  "too short to share",
			input: PostInput{UserID: 7, Content: "Hey", ShareNow: boolPtr(true), ShareOnLinkedIn: true},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrValidation))
				assert.Contains(t, err.Error(), "at least 5 characters")
			},
		},
		{
			name:  "linkedin not connected",
			input: PostInput{UserID: 99, Content: "Hello world", ShareNow: boolPtr(true), ShareOnLinkedIn: true},
			check: func(t *testing.T, err error) { assert.True(t, errors.Is(err, ErrValidation)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline()

			result, err := p.postSvc.Create(context.Background(), tt.input)

			require.Error(t, err)
			assert.Nil(t, result)
			tt.check(t, err)
			assert.Empty(t, p.posts.posts)
			assert.Empty(t, p.scheduler.requests)
		})
	}
}

func TestPostService_CreateWithoutLinkedInStillSchedules(t *testing.T) {
	p := newTestPipeline()

	result, err := p.postSvc.Create(context.Background(), PostInput{
		UserID:   99,
		Content:  "Hi",
		ShareNow: boolPtr(true),
	})

	require.NoError(t, err)
	assert.Len(t, p.scheduler.requests, 1)

	outcome, err := p.shares.Execute(context.Background(), result.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, share.OutcomeIneligible, outcome.Status)
	assert.Equal(t, share.ReasonNotRequested, outcome.Reason)
	assert.Zero(t, p.publisher.calls)
}

func TestPostService_CreateEnqueueFailureWarns(t *testing.T) {
	p := newTestPipeline()
	p.scheduler.err = errors.New("queue unavailable")

	result, err := p.postSvc.Create(context.Background(), PostInput{
		UserID:          7,
		Content:         "Hello LinkedIn",
		ShareNow:        boolPtr(true),
		ShareOnLinkedIn: true,
	})

	require.NoError(t, err)
	assert.Equal(t, WarningEnqueueFailed, result.Warning)
	stored := p.posts.get(result.Post.ID)
	assert.Equal(t, models.ShareStatePending, stored.ShareState)
	assert.True(t, share.IsRetriggerable(&stored))
}

func TestPostService_UpdateReschedules(t *testing.T) {
	first := testNow.Add(time.Hour)
	p := newTestPipeline(models.Post{
		ID: 1, UserID: 7, Content: "Hello LinkedIn", ShareAt: &first,
		ShareState: models.ShareStatePending, ShareOnLinkedIn: true,
	})
	second := testNow.Add(3 * time.Hour)

	result, err := p.postSvc.Update(context.Background(), 1, PostInput{
		Content:         "Hello LinkedIn, rescheduled",
		ShareAt:         &second,
		ShareOnLinkedIn: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello LinkedIn, rescheduled", result.Post.Content)
	require.Len(t, p.scheduler.requests, 1)
	assert.Equal(t, share.TriggerKey(1), p.scheduler.requests[0].Key)
	assert.Equal(t, second.Add(45*time.Second), p.scheduler.requests[0].FireAt)
}

func TestPostService_UpdateAfterAttemptDoesNotEnqueue(t *testing.T) {
	done := testNow.Add(-time.Hour)
	p := newTestPipeline(models.Post{
		ID: 1, UserID: 7, Content: "Hello LinkedIn", ShareAt: &done,
		ShareStartAt: &done, ShareCompleteAt: &done, SharedAtLinkedIn: &done,
		ShareState: models.ShareStateCompleted,
	})

	result, err := p.postSvc.Update(context.Background(), 1, PostInput{Content: "Edited after publishing", ShareNow: boolPtr(true)})

	require.NoError(t, err)
	assert.Empty(t, p.scheduler.requests)
	assert.Equal(t, models.ShareStateCompleted, p.posts.get(1).ShareState)
	assert.Equal(t, "Edited after publishing", result.Post.Content)
}

func TestPostService_UpdateRejectsOwnerChange(t *testing.T) {
	at := testNow.Add(time.Hour)
	p := newTestPipeline(models.Post{ID: 1, UserID: 7, Content: "Hello LinkedIn", ShareAt: &at})

	_, err := p.postSvc.Update(context.Background(), 1, PostInput{UserID: 8, Content: "Hello", ShareAt: &at})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPostService_UpdateMissing(t *testing.T) {
	p := newTestPipeline()

	_, err := p.postSvc.Update(context.Background(), 42, PostInput{Content: "Hello", ShareNow: boolPtr(true)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, share.ErrPostNotFound))
}

func TestPostService_CreateAlreadyPublished(t *testing.T) {
	p := newTestPipeline()
	published := testNow.Add(-24 * time.Hour)

	result, err := p.postSvc.Create(context.Background(), PostInput{
		UserID:           7,
		Content:          "Imported from LinkedIn",
		ShareOnLinkedIn:  true,
		SharedAtLinkedIn: &published,
	})

	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Empty(t, p.scheduler.requests)

	stored := p.posts.get(result.Post.ID)
	require.NotNil(t, stored.SharedAtLinkedIn)
	assert.Equal(t, published, *stored.SharedAtLinkedIn)
	assert.Equal(t, models.ShareStateNone, stored.ShareState)

	outcome, err := p.shares.Execute(context.Background(), result.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, share.OutcomeIneligible, outcome.Status)
	assert.Equal(t, share.ReasonAlreadyPublished, outcome.Reason)
	assert.Zero(t, p.publisher.calls)
}

func TestPostService_UpdateKeepsPublishedAt(t *testing.T) {
	published := testNow.Add(-24 * time.Hour)
	p := newTestPipeline(models.Post{
		ID: 1, UserID: 7, Content: "Imported from LinkedIn", SharedAtLinkedIn: &published,
	})
	other := testNow.Add(-time.Hour)

	result, err := p.postSvc.Update(context.Background(), 1, PostInput{
		Content:          "Imported from LinkedIn, edited",
		SharedAtLinkedIn: &other,
	})

	require.NoError(t, err)
	assert.Empty(t, p.scheduler.requests)
	assert.Equal(t, published, *result.Post.SharedAtLinkedIn)
	assert.Equal(t, published, *p.posts.get(1).SharedAtLinkedIn)
	assert.Equal(t, "Imported from LinkedIn, edited", p.posts.get(1).Content)
}

func TestPostService_UpdateImportsPublishedAt(t *testing.T) {
	p := newTestPipeline(models.Post{ID: 1, UserID: 7, Content: "Written offline", ShareNow: boolPtr(false)})
	published := testNow.Add(-time.Hour)

	_, err := p.postSvc.Update(context.Background(), 1, PostInput{
		Content:          "Written offline",
		SharedAtLinkedIn: &published,
	})

	require.NoError(t, err)
	require.NotNil(t, p.posts.get(1).SharedAtLinkedIn)
	assert.Equal(t, published, *p.posts.get(1).SharedAtLinkedIn)
}
