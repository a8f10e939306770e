package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/sesslock/pkg/logger"
)

type lockState int

const (
	lockUnopened lockState = iota
	lockReleased
	lockHeld
)

// Store coordinates one request's access to a session record: it serialises
// access through the backend lock and skips writes whose payload did not change.
//
// A Store is request-scoped, as is the Backend it wraps.
type Store struct {
	backend        Backend
	config         Config
	host           Host
	log            *slog.Logger
	observer       Observer
	fingerprint    FingerprintFunc
	touchUnchanged bool

	mu        sync.Mutex
	opened    bool
	name      string
	activeID  string
	lock      lockState
	valid     bool
	lastSum   string
	destroyed bool
}

// New creates a Store around a request-scoped backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		config:      DefaultConfig(),
		host:        StaticHost(""),
		log:         logger.Discard(),
		observer:    nopObserver{},
		fingerprint: Fingerprint,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()
	s.log = s.log.With(logger.Component("session.store"))
	return s
}

// Opened reports whether Open succeeded.
func (s *Store) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// ActiveID returns the identifier the store currently works on.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Destroyed reports whether Destroy completed for the active session.
func (s *Store) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Open prepares the backend and adopts the host's identifier as active.
func (s *Store) Open(ctx context.Context, path, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Open(ctx, path, name); err != nil {
		s.log.ErrorContext(ctx, "failed to open session backend", logger.Operation("open"), logger.Error(err))
		return err
	}

	s.opened = true
	s.name = name
	s.destroyed = false
	if s.activeID == "" {
		s.activeID = s.host.AmbientID()
	}
	return nil
}

// Read locks the session and returns its payload.
//
// Reading never fails because of the medium: a lock timeout or storage error
// yields an empty payload. Only an unresolvable identifier or a closed store
// return an error.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil, ErrNotOpened
	}
	id, err := ResolveID(id, s.activeID, s.host)
	if err != nil {
		return nil, err
	}

	if s.lock == lockHeld && s.activeID != id {
		if err := s.releaseLock(ctx); err != nil {
			s.log.WarnContext(ctx, "failed to release previous session lock", logger.Operation("read"), logger.Error(err))
		}
	}

	if s.lock != lockHeld {
		s.activeID = id
		if err := s.acquireLock(ctx, id); err != nil {
			s.markInvalid()
			return []byte{}, nil
		}
	}

	rec, err := s.backend.Fetch(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			s.log.ErrorContext(ctx, "failed to fetch session", logger.Operation("read"), logger.SessionID(id), logger.Error(err))
		}
		s.markInvalid()
		return []byte{}, nil
	}

	s.lastSum = s.fingerprint(rec.Data)
	s.valid = true
	return rec.Data, nil
}

// Write persists data for id, switching the lock over first when id differs
// from the active identifier. An unchanged payload does not reach storage.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return ErrNotOpened
	}
	id, err := ResolveID(id, s.activeID, s.host)
	if err != nil {
		return err
	}

	if id != s.activeID {
		if err := s.regenerate(ctx, id); err != nil {
			s.observer.ObserveWrite(WriteFailed)
			return err
		}
	} else if s.lock != lockHeld {
		s.observer.ObserveWrite(WriteFailed)
		return ErrNotLocked
	}

	if !s.valid || !s.recordExists(ctx, id) {
		if err := s.backend.Replace(ctx, id, data); err != nil {
			return s.writeFailed(ctx, id, err)
		}
		s.lastSum = s.fingerprint(data)
		s.valid = true
		s.observer.ObserveWrite(WriteReplaced)
		return nil
	}

	sum := s.fingerprint(data)
	if sum != s.lastSum {
		if err := s.backend.Update(ctx, id, data); err != nil {
			return s.writeFailed(ctx, id, err)
		}
		s.lastSum = sum
		s.observer.ObserveWrite(WriteUpdated)
		return nil
	}

	if !bytes.Equal(s.backend.Current(), data) {
		s.log.WarnContext(ctx, "session payload differs from backend copy", logger.Operation("write"), logger.SessionID(id))
		s.observer.ObserveWrite(WriteFailed)
		return ErrPayloadMismatch
	}

	if s.touchUnchanged {
		if err := s.backend.Touch(ctx, id); err != nil {
			return s.writeFailed(ctx, id, err)
		}
	}

	s.log.DebugContext(ctx, "session unchanged, write skipped", logger.Operation("write"), logger.SessionID(id))
	s.observer.ObserveWrite(WriteSkipped)
	return nil
}

// Close releases the session lock if one is held.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close(ctx)
}

// Destroy deletes the session and clears client-side state.
// When the delete fails the lock is still released, the client state is left
// alone and the delete error is returned.
func (s *Store) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ResolveID(id, s.activeID, s.host)
	if err != nil {
		return err
	}

	if s.lock == lockHeld && s.activeID == id {
		if err := s.backend.Delete(ctx, id); err != nil {
			s.log.ErrorContext(ctx, "failed to delete session", logger.Operation("destroy"), logger.SessionID(id), logger.Error(err))
			if rerr := s.releaseLock(ctx); rerr != nil {
				s.log.WarnContext(ctx, "failed to release session lock", logger.Operation("destroy"), logger.SessionID(id), logger.Error(rerr))
			}
			return err
		}
	}

	if err := s.close(ctx); err != nil {
		s.log.WarnContext(ctx, "failed to release session lock", logger.Operation("destroy"), logger.SessionID(id), logger.Error(err))
	}

	s.valid = false
	s.lastSum = ""
	s.destroyed = true

	return s.host.ClearTransport()
}

// GC removes sessions older than maxAge; a non-positive age means Config.Expiration.
func (s *Store) GC(ctx context.Context, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return ErrNotOpened
	}
	if maxAge <= 0 {
		maxAge = s.config.Expiration
	}

	err := s.backend.DeleteExpired(ctx, maxAge)
	s.observer.ObserveGC(err)
	if err != nil {
		s.log.ErrorContext(ctx, "session garbage collection failed", logger.Operation("gc"), logger.Duration(maxAge), logger.Error(err))
		return err
	}
	return nil
}

func (s *Store) close(ctx context.Context) error {
	if s.lock != lockHeld {
		return nil
	}
	return s.releaseLock(ctx)
}

func (s *Store) regenerate(ctx context.Context, id string) error {
	if s.lock == lockHeld {
		if err := s.releaseLock(ctx); err != nil {
			return err
		}
	}
	s.activeID = id
	s.markInvalid()
	return s.acquireLock(ctx, id)
}

func (s *Store) acquireLock(ctx context.Context, id string) error {
	start := time.Now()
	err := s.backend.AcquireLock(ctx, id)
	s.observer.ObserveLock(err == nil, time.Since(start))
	if err != nil {
		s.lock = lockReleased
		if errors.Is(err, ErrLockTimeout) {
			s.log.WarnContext(ctx, "session lock wait timed out", logger.SessionID(id))
		} else {
			s.log.ErrorContext(ctx, "failed to acquire session lock", logger.SessionID(id), logger.Error(err))
		}
		return err
	}
	s.lock = lockHeld
	return nil
}

// releaseLock runs even when the request context is already cancelled.
func (s *Store) releaseLock(ctx context.Context) error {
	s.lock = lockReleased
	return s.backend.ReleaseLock(context.WithoutCancel(ctx), s.activeID)
}

func (s *Store) recordExists(ctx context.Context, id string) bool {
	_, err := s.backend.Fetch(ctx, id)
	return err == nil
}

func (s *Store) markInvalid() {
	s.valid = false
	s.lastSum = s.fingerprint([]byte{})
}

func (s *Store) writeFailed(ctx context.Context, id string, err error) error {
	s.log.ErrorContext(ctx, "failed to write session", logger.Operation("write"), logger.SessionID(id), logger.Error(err))
	s.observer.ObserveWrite(WriteFailed)
	return err
}
