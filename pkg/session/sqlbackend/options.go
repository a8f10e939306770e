package sqlbackend

import (
	"log/slog"
	"regexp"
	"time"
)

// DefaultTable is the table created by Migrations.
const DefaultTable = "sessions"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Option configures a Backend
type Option func(*Backend)

// WithTable sets the sessions table, optionally schema-qualified. Invalid names are ignored.
func WithTable(name string) Option {
	return func(b *Backend) {
		if tableName.MatchString(name) {
			b.table = name
		}
	}
}

// WithLockTimeout bounds the advisory lock wait
func WithLockTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.lockTimeout = d
		}
	}
}

// WithLockRetryInterval sets how often pg_try_advisory_lock is retried
func WithLockRetryInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.retryInterval = d
		}
	}
}

// WithClock overrides the time source for updated_at and expiry
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
