package share

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/queue"
	"github.com/ifuryst/postshare/internal/service/publisher"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func boolPtr(v bool) *bool { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// memStore is a Store backed by a map. MarkShareStarted is atomic under mu.
type memStore struct {
	mu        sync.Mutex
	posts     map[uint]models.Post
	updates   int
	starts    int
	getErr    error
	updateErr error
	// onStart edits the stored post right after a winning MarkShareStarted.
	onStart func(p *models.Post)
}

func newMemStore(posts ...models.Post) *memStore {
	s := &memStore{posts: make(map[uint]models.Post)}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *memStore) GetPost(_ context.Context, id uint) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return &p, nil
}

func (s *memStore) MarkShareStarted(_ context.Context, id uint, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.ShareStartAt != nil || p.ShareCompleteAt != nil {
		return false, nil
	}
	p.ShareStartAt = &at
	p.ShareState = models.ShareStateStarted
	if s.onStart != nil {
		s.onStart(&p)
	}
	s.posts[id] = p
	s.starts++
	return true, nil
}

func (s *memStore) UpdateFields(_ context.Context, id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	p := s.posts[id]
	for column, value := range fields {
		switch column {
		case models.ColumnShareCompleteAt:
			at := value.(time.Time)
			p.ShareCompleteAt = &at
		case models.ColumnSharedAtLinkedIn:
			at := value.(time.Time)
			p.SharedAtLinkedIn = &at
		case models.ColumnShareState:
			p.ShareState = value.(models.ShareState)
		case models.ColumnShareError:
			p.ShareError = value.(string)
		case models.ColumnShareOnLinkedIn:
			p.ShareOnLinkedIn = value.(bool)
		}
	}
	s.posts[id] = p
	s.updates++
	return nil
}

func (s *memStore) post(id uint) models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[id]
}

func (s *memStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates + s.starts
}

type stubResolver struct {
	creds map[uint]*publisher.Credentials
	err   error
}

func (r *stubResolver) ResolveCredentials(_ context.Context, userID uint) (*publisher.Credentials, error) {
	if r.err != nil {
		return nil, r.err
	}
	creds, ok := r.creds[userID]
	if !ok {
		return nil, publisher.ErrNotConnected
	}
	return creds, nil
}

func connected(userID uint) *stubResolver {
	return &stubResolver{creds: map[uint]*publisher.Credentials{
		userID: {UserID: userID, Provider: models.ProviderLinkedIn, UID: "abc123", Token: "token"},
	}}
}

type stubPublisher struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (p *stubPublisher) GetPlatformName() string { return models.ProviderLinkedIn }

func (p *stubPublisher) Publish(ctx context.Context, content publisher.PublishContent, _ publisher.Credentials) (*publisher.PublishResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.PublishResult{Success: true, PublishID: "urn:li:share:1", PublishedAt: baseTime}, nil
}

func (p *stubPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingScheduler struct {
	mu       sync.Mutex
	requests []queue.Request
	err      error
}

func (s *recordingScheduler) Schedule(_ context.Context, req queue.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

func newTestHandler(t *testing.T, store Store, resolver publisher.CredentialResolver, pub publisher.Publisher, now time.Time) *Handler {
	t.Helper()
	logger := zap.NewNop()
	return NewHandler(store, NewGuard(resolver, logger), pub, logger,
		WithHandlerClock(fixedClock(now)),
		WithPublishTimeout(time.Second))
}

// duePost is a post whose share time has passed and whose trigger has fired.
func duePost(id uint) models.Post {
	return models.Post{
		ID:              id,
		UserID:          7,
		Content:         "Hello LinkedIn, this is a post.",
		ShareAt:         timePtr(baseTime.Add(-time.Minute)),
		ShareState:      models.ShareStatePending,
		ShareOnLinkedIn: true,
	}
}
