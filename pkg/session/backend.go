package session

import (
	"context"
	"time"
)

const (
	// DefaultLockTimeout bounds how long a backend waits for a per-session lock.
	DefaultLockTimeout = 300 * time.Second

	// DefaultLockRetryInterval is the poll cadence of backends that retry a non-blocking lock.
	DefaultLockRetryInterval = 50 * time.Millisecond
)

// Record is a persisted session.
type Record struct {
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// Backend is the contract every storage technology implements.
//
// A Backend value is scoped to a single request: it remembers which lock it
// holds and caches the payload it last read or wrote (see Current). The
// storage medium behind it is shared, so hosts create one Backend per request
// through a BackendFactory.
type Backend interface {
	// Open prepares the medium. path and name are host hints (directory, table,
	// key prefix). A medium that cannot be used fails with ErrEnvironmentUnavailable.
	Open(ctx context.Context, path, name string) error

	// AcquireLock takes the exclusive per-session lock, waiting up to the
	// backend's bound. It fails with ErrLockTimeout when the bound elapses.
	AcquireLock(ctx context.Context, id string) error

	// ReleaseLock drops the lock. Releasing a lock that is not held is a no-op.
	ReleaseLock(ctx context.Context, id string) error

	// Fetch returns the full record or ErrRecordNotFound.
	Fetch(ctx context.Context, id string) (*Record, error)

	// FetchData returns only the payload of the record.
	FetchData(ctx context.Context, id string) ([]byte, error)

	// Insert creates a record. It fails with ErrRecordExists when present.
	Insert(ctx context.Context, id string, data []byte) error

	// Update overwrites an existing record. It fails with ErrRecordNotFound when absent.
	Update(ctx context.Context, id string, data []byte) error

	// Replace inserts or overwrites.
	Replace(ctx context.Context, id string, data []byte) error

	// Touch refreshes the last-modified time without changing the payload.
	Touch(ctx context.Context, id string) error

	// Delete removes the record.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes every record whose age is strictly greater than maxAge.
	DeleteExpired(ctx context.Context, maxAge time.Duration) error

	// Current returns the payload cached by the last Fetch or write in this scope.
	Current() []byte
}

// BackendFactory builds a fresh request-scoped Backend.
type BackendFactory func() Backend
