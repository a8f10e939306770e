package filebackend

import (
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultExtension is the session file extension.
	DefaultExtension = "php"

	// DefaultSentinel is written in front of every payload.
	DefaultSentinel = "<?php exit;?>"
)

// Option configures a Backend
type Option func(*Backend)

// WithExtension sets the file extension (without dot)
func WithExtension(ext string) Option {
	return func(b *Backend) {
		if ext = strings.TrimPrefix(ext, "."); ext != "" {
			b.ext = ext
		}
	}
}

// WithSentinel sets the prefix written before every payload; "" disables framing
func WithSentinel(sentinel string) Option {
	return func(b *Backend) {
		b.sentinel = []byte(sentinel)
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

// WithLockRetryInterval sets how often a busy lock is retried
func WithLockRetryInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.retryInterval = d
		}
	}
}

// WithClock overrides the time source used by Touch and DeleteExpired
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
