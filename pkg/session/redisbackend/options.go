package redisbackend

import (
	"log/slog"
	"time"
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "sess:"

// DefaultLockTTL bounds how long a crashed holder can keep a session locked.
const DefaultLockTTL = 5 * time.Minute

// Option configures a Backend
type Option func(*Backend)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithTTL sets a Redis expiry on session keys, refreshed on every write.
// Zero leaves expiry to DeleteExpired.
func WithTTL(d time.Duration) Option {
	return func(b *Backend) {
		if d >= 0 {
			b.ttl = d
		}
	}
}

// WithLockTTL sets the expiry of lock keys.
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

// WithLockRetryInterval sets how often SET NX is retried
func WithLockRetryInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.retryInterval = d
		}
	}
}

// WithScanBatchSize sets the SCAN COUNT hint used by DeleteExpired
func WithScanBatchSize(n int64) Option {
	return func(b *Backend) {
		if n > 0 {
			b.scanBatch = n
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
