package session

import (
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/dmitrymomot/sesslock/pkg/logger"
)

type middlewareOptions struct {
	config    Config
	transport Transport
	log       *slog.Logger
	storeOpts []Option
	roll      func(n int) int
}

// MiddlewareOption configures Middleware
type MiddlewareOption func(*middlewareOptions)

// WithMiddlewareConfig sets the session configuration
func WithMiddlewareConfig(cfg Config) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.config = cfg
	}
}

// WithTransport sets a custom identifier transport (default: cookie from config)
func WithTransport(t Transport) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.transport = t
	}
}

// WithMiddlewareLogger sets the logger for the middleware and its stores
func WithMiddlewareLogger(log *slog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithStoreOptions passes extra options to every per-request Store
func WithStoreOptions(opts ...Option) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithGCRoll replaces the random source deciding whether a request runs GC.
// fn(n) must return a value in [0, n).
func WithGCRoll(fn func(n int) int) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.roll = fn
		}
	}
}

// Middleware opens, locks and reads the request's session before the handler
// and writes and unlocks it afterwards. The session is available through
// FromContext. Requests without a valid identifier get a new one.
func Middleware(factory BackendFactory, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{
		config: DefaultConfig(),
		log:    logger.Discard(),
		roll:   rand.IntN,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.config = o.config.withDefaults()
	if o.transport == nil {
		o.transport = NewCookieTransport(o.config)
	}
	cfg := o.config
	log := o.log.With(logger.Component("session.middleware"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			id, err := o.transport.GetID(r)
			fresh := err != nil || !ValidID(id)
			if fresh {
				if id, err = NewID(); err != nil {
					log.ErrorContext(ctx, "failed to generate session id", logger.Error(err))
					http.Error(w, "Session error", http.StatusInternalServerError)
					return
				}
			}

			host := &requestHost{id: id, w: w, transport: o.transport}
			if fresh || cfg.CookieLifetime > 0 {
				if err := o.transport.SetID(w, id); err != nil {
					log.WarnContext(ctx, "failed to send session id", logger.Error(err))
				}
			}

			storeOpts := append([]Option{WithConfig(cfg), WithHost(host), WithLogger(o.log)}, o.storeOpts...)
			store := New(factory(), storeOpts...)

			if err := store.Open(ctx, cfg.SavePath, cfg.CookieName); err != nil {
				log.ErrorContext(ctx, "session storage unavailable", logger.Error(err))
				http.Error(w, "Session error", http.StatusInternalServerError)
				return
			}
			defer func() {
				if err := store.Close(ctx); err != nil {
					log.WarnContext(ctx, "failed to close session", logger.SessionID(id), logger.Error(err))
				}
			}()

			data, err := store.Read(ctx, id)
			if err != nil {
				log.ErrorContext(ctx, "failed to read session", logger.SessionID(id), logger.Error(err))
				http.Error(w, "Session error", http.StatusInternalServerError)
				return
			}

			if cfg.GCProbability > 0 && o.roll(cfg.GCDivisor) < cfg.GCProbability {
				// Errors are logged by the store and never fail the request.
				_ = store.GC(ctx, cfg.Expiration)
			}

			sess := &Session{id: id, data: data, store: store, host: host}
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))

			if sess.Destroyed() {
				return
			}
			if err := store.Write(ctx, sess.ID(), sess.Data()); err != nil {
				log.ErrorContext(ctx, "failed to write session", logger.SessionID(sess.ID()), logger.Error(err))
			}
		})
	}
}
