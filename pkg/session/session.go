package session

import (
	"bytes"
	"context"
	"net/http"
	"sync"
)

// Session is the request's view of its session, available to handlers
// through FromContext. The middleware persists Data after the handler returns.
type Session struct {
	mu        sync.RWMutex
	id        string
	data      []byte
	destroyed bool

	store *Store
	host  *requestHost
}

// ID returns the current session identifier.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Data returns a copy of the session payload.
func (s *Session) Data() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bytes.Clone(s.data)
}

// SetData replaces the session payload.
func (s *Session) SetData(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = bytes.Clone(data)
}

// Regenerate assigns a fresh identifier and sends it to the client right away.
// The payload moves to the new identifier on the next write; the old record
// is left for garbage collection.
func (s *Session) Regenerate() error {
	id, err := NewID()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.host.setID(id); err != nil {
		return err
	}
	s.id = id
	return nil
}

// Destroy deletes the session record and clears the client identifier.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Destroy(ctx, s.id); err != nil {
		return err
	}
	s.data = nil
	s.destroyed = true
	return nil
}

// Destroyed reports whether Destroy succeeded.
func (s *Session) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// requestHost adapts one HTTP exchange to the Host interface.
type requestHost struct {
	mu        sync.Mutex
	id        string
	w         http.ResponseWriter
	transport Transport
}

func (h *requestHost) AmbientID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func (h *requestHost) ClearTransport() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transport.ClearID(h.w)
}

func (h *requestHost) setID(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.transport.SetID(h.w, id); err != nil {
		return err
	}
	h.id = id
	return nil
}
