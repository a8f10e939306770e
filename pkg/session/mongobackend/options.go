package mongobackend

import (
	"log/slog"
	"time"
)

const (
	// DefaultCollection holds session records.
	DefaultCollection = "sessions"
	// DefaultLockCollection holds lock documents.
	DefaultLockCollection = "session_locks"
	// DefaultLockTTL is how long a lock survives a crashed holder.
	DefaultLockTTL = 5 * time.Minute
)

// Option configures a Backend
type Option func(*Backend)

// WithCollection sets the records collection
func WithCollection(name string) Option {
	return func(b *Backend) {
		if name != "" {
			b.collection = name
		}
	}
}

// WithLockCollection sets the locks collection
func WithLockCollection(name string) Option {
	return func(b *Backend) {
		if name != "" {
			b.lockCollection = name
		}
	}
}

// WithLockTTL sets after how long a held lock may be taken over.
func WithLockTTL(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.lockTTL = d
		}
	}
}

// WithLockTimeout bounds the lock wait
func WithLockTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.lockTimeout = d
		}
	}
}

// WithLockRetryInterval sets the lock polling interval
func WithLockRetryInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.retryInterval = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}
