package session_test

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/sesslock/pkg/session"
)

// spyBackend counts calls reaching the wrapped backend and injects failures.
type spyBackend struct {
	session.Backend

	mu        sync.Mutex
	calls     map[string]int
	deleteErr error
	replErr   error
	openErr   error
	gcErr     error

	releaseCtxErrs []error
}

func newSpy(b session.Backend) *spyBackend {
	return &spyBackend{Backend: b, calls: make(map[string]int)}
}

func (s *spyBackend) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func (s *spyBackend) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *spyBackend) Open(ctx context.Context, path, name string) error {
	s.count("Open")
	if s.openErr != nil {
		return s.openErr
	}
	return s.Backend.Open(ctx, path, name)
}

func (s *spyBackend) AcquireLock(ctx context.Context, id string) error {
	s.count("AcquireLock")
	return s.Backend.AcquireLock(ctx, id)
}

func (s *spyBackend) ReleaseLock(ctx context.Context, id string) error {
	s.count("ReleaseLock")
	s.mu.Lock()
	s.releaseCtxErrs = append(s.releaseCtxErrs, ctx.Err())
	s.mu.Unlock()
	return s.Backend.ReleaseLock(ctx, id)
}

func (s *spyBackend) Replace(ctx context.Context, id string, data []byte) error {
	s.count("Replace")
	if s.replErr != nil {
		return s.replErr
	}
	return s.Backend.Replace(ctx, id, data)
}

func (s *spyBackend) Update(ctx context.Context, id string, data []byte) error {
	s.count("Update")
	return s.Backend.Update(ctx, id, data)
}

func (s *spyBackend) Touch(ctx context.Context, id string) error {
	s.count("Touch")
	return s.Backend.Touch(ctx, id)
}

func (s *spyBackend) Delete(ctx context.Context, id string) error {
	s.count("Delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Backend.Delete(ctx, id)
}

func (s *spyBackend) DeleteExpired(ctx context.Context, maxAge time.Duration) error {
	s.count("DeleteExpired")
	if s.gcErr != nil {
		return s.gcErr
	}
	return s.Backend.DeleteExpired(ctx, maxAge)
}

// spyHost is a Host recording transport clears.
type spyHost struct {
	id      string
	cleared int
}

func (h *spyHost) AmbientID() string     { return h.id }
func (h *spyHost) ClearTransport() error { h.cleared++; return nil }

// spyObserver records store events.
type spyObserver struct {
	mu     sync.Mutex
	locks  []bool
	writes []session.WriteOutcome
	gcs    []error
}

func (o *spyObserver) ObserveLock(acquired bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locks = append(o.locks, acquired)
}

func (o *spyObserver) ObserveWrite(outcome session.WriteOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, outcome)
}

func (o *spyObserver) ObserveGC(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gcs = append(o.gcs, err)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testID    = "0123456789abcdef0123456789abcdef01234567"
	otherID   = "89abcdef0123456789abcdef0123456789abcdef"
	shortWait = 50 * time.Millisecond
)
