package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrStopped is returned when scheduling on a substrate that was shut down.
var ErrStopped = errors.New("queue stopped")

// Memory holds deferred requests in process, one timer per key. Requests are
// lost on restart; the reconciler re-enqueues them.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	seq      uint64
	dispatch DispatchFunc
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  bool
	wg       sync.WaitGroup

	retryDelay time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

type memoryEntry struct {
	req     Request
	version uint64
	timer   *time.Timer
}

func NewMemory(retryDelay time.Duration, logger *zap.Logger) *Memory {
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		retryDelay: retryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// Schedule upserts the request for req.Key. A pending timer for the same key
// is replaced, never duplicated.
func (m *Memory) Schedule(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	m.upsert(req)
	return nil
}

func (m *Memory) upsert(req Request) {
	if existing, ok := m.entries[req.Key]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	m.seq++
	entry := &memoryEntry{req: req, version: m.seq}
	m.entries[req.Key] = entry
	if m.dispatch != nil {
		m.arm(entry)
	}
}

// arm must be called with mu held.
func (m *Memory) arm(entry *memoryEntry) {
	delay := entry.req.FireAt.Sub(m.now())
	if delay < 0 {
		delay = 0
	}
	key, version := entry.req.Key, entry.version
	entry.timer = time.AfterFunc(delay, func() {
		m.fire(key, version)
	})
}

// Start arms every pending request and delivers due ones to dispatch.
func (m *Memory) Start(ctx context.Context, dispatch DispatchFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.dispatch != nil {
		return errors.New("memory queue already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.dispatch = dispatch
	for _, entry := range m.entries {
		m.arm(entry)
	}

	m.logger.Info("Memory queue started", zap.Int("pending", len(m.entries)))
	return nil
}

func (m *Memory) fire(key string, version uint64) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	// Ignore callbacks of replaced timers
	if !ok || entry.version != version || m.stopped {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	ctx, dispatch := m.ctx, m.dispatch
	m.wg.Add(1)
	m.mu.Unlock()

	defer m.wg.Done()

	if err := dispatch(ctx, entry.req.Payload); err != nil {
		m.logger.Warn("Dispatch failed, will retry",
			zap.String("key", key),
			zap.Duration("retry_in", m.retryDelay),
			zap.Error(err))
		m.retry(entry.req)
	}
}

func (m *Memory) retry(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	// A newer request for the key supersedes the retry
	if _, ok := m.entries[req.Key]; ok {
		return
	}
	req.FireAt = m.now().Add(m.retryDelay)
	m.upsert(req)
}

// Pending returns the number of requests waiting for their fire time.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stop cancels all timers and waits for in-flight dispatches.
func (m *Memory) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for _, entry := range m.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Memory queue stopped")
}
