package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/queue"
	"github.com/ifuryst/postshare/internal/service/publisher"
	"github.com/ifuryst/postshare/internal/service/share"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func boolPtr(v bool) *bool { return &v }

// fakePosts implements PostRepository, share.Store and UnstartedLister.
type fakePosts struct {
	mu        sync.Mutex
	posts     map[uint]models.Post
	nextID    uint
	createErr error
}

func newFakePosts(posts ...models.Post) *fakePosts {
	f := &fakePosts{posts: make(map[uint]models.Post), nextID: 1}
	for _, p := range posts {
		f.posts[p.ID] = p
		if p.ID >= f.nextID {
			f.nextID = p.ID + 1
		}
	}
	return f
}

func (f *fakePosts) Create(_ context.Context, post *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	post.ID = f.nextID
	f.nextID++
	f.posts[post.ID] = *post
	return nil
}

func (f *fakePosts) Update(_ context.Context, post *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.posts[post.ID]
	if !ok {
		return share.ErrPostNotFound
	}
	stored.Content = post.Content
	stored.ShareNow = post.ShareNow
	stored.ShareAt = post.ShareAt
	stored.ShareOnLinkedIn = post.ShareOnLinkedIn
	if stored.SharedAtLinkedIn == nil {
		stored.SharedAtLinkedIn = post.SharedAtLinkedIn
	}
	if post.ShareState == models.ShareStatePending && stored.ShareStartAt == nil && stored.ShareCompleteAt == nil {
		stored.ShareState = models.ShareStatePending
	}
	f.posts[post.ID] = stored
	return nil
}

func (f *fakePosts) GetPost(_ context.Context, id uint) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("post %d", id), share.ErrPostNotFound)
	}
	return &p, nil
}

func (f *fakePosts) MarkShareStarted(_ context.Context, id uint, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok || p.ShareStartAt != nil || p.ShareCompleteAt != nil {
		return false, nil
	}
	p.ShareStartAt = &at
	p.ShareState = models.ShareStateStarted
	f.posts[id] = p
	return true, nil
}

func (f *fakePosts) UpdateFields(_ context.Context, id uint, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
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
	f.posts[id] = p
	return nil
}

func (f *fakePosts) ListUnstarted(_ context.Context, dueBefore time.Time, limit int) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Post
	for _, p := range f.posts {
		if p.ShareAt != nil && p.ShareAt.Before(dueBefore) && p.ShareStartAt == nil && p.ShareCompleteAt == nil {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePosts) get(id uint) models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[id]
}

type fakeResolver struct {
	connected map[uint]bool
}

func (r *fakeResolver) ResolveCredentials(_ context.Context, userID uint) (*publisher.Credentials, error) {
	if !r.connected[userID] {
		return nil, publisher.ErrNotConnected
	}
	return &publisher.Credentials{UserID: userID, Provider: models.ProviderLinkedIn, UID: "abc123", Token: "token"}, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePublisher) GetPlatformName() string { return models.ProviderLinkedIn }

func (p *fakePublisher) Publish(_ context.Context, _ publisher.PublishContent, _ publisher.Credentials) (*publisher.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.PublishResult{Success: true, PublishID: "urn:li:share:1"}, nil
}

type fakeScheduler struct {
	mu       sync.Mutex
	requests []queue.Request
	err      error
}

func (s *fakeScheduler) Schedule(_ context.Context, req queue.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

type metricCall struct {
	name string
	tags map[string]interface{}
}

type fakeMonitor struct {
	mu      sync.Mutex
	metrics []metricCall
	errors  []string
}

func (m *fakeMonitor) RecordError(_, _, title, _ string, _ ...ErrorLogOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, title)
	return nil
}

func (m *fakeMonitor) RecordMetric(name, _ string, _ float64, tags map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metricCall{name: name, tags: tags})
	return nil
}

type testPipeline struct {
	posts     *fakePosts
	publisher *fakePublisher
	scheduler *fakeScheduler
	monitor   *fakeMonitor
	guard     *share.Guard
	trigger   *share.Trigger
	shares    *ShareService
	postSvc   *PostService
}

func newTestPipeline(posts ...models.Post) *testPipeline {
	logger := zap.NewNop()
	p := &testPipeline{
		posts:     newFakePosts(posts...),
		publisher: &fakePublisher{},
		scheduler: &fakeScheduler{},
		monitor:   &fakeMonitor{},
	}
	p.guard = share.NewGuard(&fakeResolver{connected: map[uint]bool{7: true}}, logger)
	p.trigger = share.NewTrigger(p.scheduler,
		share.NewDelayCalculator(share.DefaultShareNowDelay, share.DefaultShareAtDelay),
		logger, share.WithTriggerClock(clock))
	handler := share.NewHandler(p.posts, p.guard, p.publisher, logger, share.WithHandlerClock(clock))
	p.shares = NewShareService(handler, p.trigger, p.posts, p.monitor, logger)
	p.postSvc = NewPostService(p.posts, p.guard, p.trigger, logger)
	return p
}
