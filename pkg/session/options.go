package session

import "log/slog"

// Option is a functional option for configuring the Store
type Option func(*Store)

// WithConfig sets custom configuration
func WithConfig(cfg Config) Option {
	return func(s *Store) {
		s.config = cfg
	}
}

// WithHost sets the host that supplies the ambient identifier and clears transport state
func WithHost(host Host) Option {
	return func(s *Store) {
		if host != nil {
			s.host = host
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithObserver sets the event observer
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithFingerprintFunc replaces the dirty-check digest
func WithFingerprintFunc(fn FingerprintFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.fingerprint = fn
		}
	}
}

// WithTouchUnchanged makes unchanged writes refresh the record's last-modified time
func WithTouchUnchanged(enabled bool) Option {
	return func(s *Store) {
		s.touchUnchanged = enabled
	}
}
