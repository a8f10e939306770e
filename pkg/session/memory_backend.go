package session

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
)

type memoryRecord struct {
	data      []byte
	updatedAt time.Time
}

// MemoryStorage is an in-process medium shared by MemoryBackend scopes.
// Useful for tests and single-instance deployments.
type MemoryStorage struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	locks   map[string]*memoryLock
	now     func() time.Time
}

// memoryLock is a one-slot channel shared by every scope holding or waiting
// for it. The entry is dropped when refs reaches zero.
type memoryLock struct {
	ch   chan struct{}
	refs int
}

// MemoryStorageOption configures a MemoryStorage
type MemoryStorageOption func(*MemoryStorage)

// WithMemoryClock overrides the time source used for last-modified stamps
func WithMemoryClock(now func() time.Time) MemoryStorageOption {
	return func(m *MemoryStorage) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStorage creates an empty in-memory medium.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	m := &MemoryStorage{
		records: make(map[string]memoryRecord),
		locks:   make(map[string]*memoryLock),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backend returns a request-scoped backend over this storage.
func (m *MemoryStorage) Backend(opts ...MemoryBackendOption) *MemoryBackend {
	b := &MemoryBackend{
		storage:     m,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Factory returns a BackendFactory producing backends over this storage.
func (m *MemoryStorage) Factory(opts ...MemoryBackendOption) BackendFactory {
	return func() Backend {
		return m.Backend(opts...)
	}
}

// Len returns the number of stored records.
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryStorage) retainLock(key string) *memoryLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &memoryLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *MemoryStorage) dropLock(key string, l *memoryLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// MemoryBackendOption configures a MemoryBackend
type MemoryBackendOption func(*MemoryBackend)

// WithMemoryLockTimeout bounds the lock wait
func WithMemoryLockTimeout(d time.Duration) MemoryBackendOption {
	return func(b *MemoryBackend) {
		if d > 0 {
			b.lockTimeout = d
		}
	}
}

// MemoryBackend implements Backend on top of a MemoryStorage.
type MemoryBackend struct {
	storage     *MemoryStorage
	lockTimeout time.Duration

	name    string
	held    string
	lock    *memoryLock
	current []byte
}

var _ Backend = (*MemoryBackend)(nil)

// Open records the session name used to namespace keys.
func (b *MemoryBackend) Open(_ context.Context, _, name string) error {
	b.name = name
	return nil
}

// AcquireLock waits for the per-session lock until the timeout or ctx ends.
func (b *MemoryBackend) AcquireLock(ctx context.Context, id string) error {
	if b.lock != nil {
		if b.held == id {
			return nil
		}
		_ = b.ReleaseLock(ctx, b.held)
	}

	key := b.key(id)
	l := b.storage.retainLock(key)

	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		b.held = id
		b.lock = l
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	b.storage.dropLock(key, l)
	return ErrLockTimeout
}

// ReleaseLock frees the lock if this scope holds it.
func (b *MemoryBackend) ReleaseLock(_ context.Context, id string) error {
	if b.lock == nil || b.held != id {
		return nil
	}
	l := b.lock
	<-l.ch
	b.storage.dropLock(b.key(id), l)
	b.lock = nil
	b.held = ""
	return nil
}

// Fetch returns a copy of the stored record.
func (b *MemoryBackend) Fetch(_ context.Context, id string) (*Record, error) {
	b.storage.mu.Lock()
	rec, ok := b.storage.records[b.key(id)]
	b.storage.mu.Unlock()

	if !ok {
		return nil, ErrRecordNotFound
	}
	b.current = bytes.Clone(rec.data)
	return &Record{ID: id, Data: bytes.Clone(rec.data), UpdatedAt: rec.updatedAt}, nil
}

// FetchData returns the stored payload.
func (b *MemoryBackend) FetchData(ctx context.Context, id string) ([]byte, error) {
	rec, err := b.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Insert stores a new record.
func (b *MemoryBackend) Insert(_ context.Context, id string, data []byte) error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	key := b.key(id)
	if _, ok := b.storage.records[key]; ok {
		return ErrRecordExists
	}
	b.put(key, data)
	return nil
}

// Update overwrites an existing record.
func (b *MemoryBackend) Update(_ context.Context, id string, data []byte) error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	key := b.key(id)
	if _, ok := b.storage.records[key]; !ok {
		return ErrRecordNotFound
	}
	b.put(key, data)
	return nil
}

// Replace inserts or overwrites.
func (b *MemoryBackend) Replace(_ context.Context, id string, data []byte) error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	b.put(b.key(id), data)
	return nil
}

// Touch refreshes the last-modified time.
func (b *MemoryBackend) Touch(_ context.Context, id string) error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	key := b.key(id)
	rec, ok := b.storage.records[key]
	if !ok {
		return ErrRecordNotFound
	}
	rec.updatedAt = b.storage.now()
	b.storage.records[key] = rec
	return nil
}

// Delete removes the record.
func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	delete(b.storage.records, b.key(id))
	b.current = nil
	return nil
}

// DeleteExpired removes records of this session name older than maxAge.
func (b *MemoryBackend) DeleteExpired(_ context.Context, maxAge time.Duration) error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	now := b.storage.now()
	prefix := b.name + ":"
	for key, rec := range b.storage.records {
		if strings.HasPrefix(key, prefix) && now.Sub(rec.updatedAt) > maxAge {
			delete(b.storage.records, key)
		}
	}
	return nil
}

// Current returns the payload cached in this scope.
func (b *MemoryBackend) Current() []byte {
	return b.current
}

// put must be called with the storage mutex held.
func (b *MemoryBackend) put(key string, data []byte) {
	b.storage.records[key] = memoryRecord{
		data:      bytes.Clone(data),
		updatedAt: b.storage.now(),
	}
	b.current = bytes.Clone(data)
}

func (b *MemoryBackend) key(id string) string {
	return b.name + ":" + id
}
