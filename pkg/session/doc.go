// Package session persists per-user session payloads behind an exclusive
// per-session lock.
//
// Concurrent requests carrying the same session identifier are serialised: a
// request locks its session on Read and holds the lock until Close, so a
// second request waits (up to the backend's lock timeout) instead of racing
// the first one's write.
//
// # Architecture
//
// A Store drives one request's session lifecycle (Open, Read, Write, Close,
// Destroy, GC) on top of a Backend. Backends are request-scoped values over a
// shared medium and are built through a BackendFactory. Implementations ship
// in sub-packages:
//
//   - filebackend: one file per session guarded by flock
//   - sqlbackend: PostgreSQL with advisory locks
//   - redisbackend: Redis hashes with SET NX locks
//   - mongobackend: MongoDB with a lock collection
//
// MemoryStorage provides an in-process medium for tests and single-instance
// deployments.
//
// The Store keeps a fingerprint of the payload it last read or wrote. Writing
// an unchanged payload is skipped entirely, so read-only requests never touch
// storage.
//
// # Usage
//
//	storage := session.NewMemoryStorage()
//	mw := session.Middleware(storage.Factory(),
//		session.WithMiddlewareConfig(cfg),
//		session.WithMiddlewareLogger(log),
//	)
//
//	r.With(mw).Get("/", func(w http.ResponseWriter, r *http.Request) {
//		sess := session.MustFromContext(r.Context())
//		sess.SetData(append(sess.Data(), '!'))
//	})
//
// Stores can also be driven directly:
//
//	store := session.New(backend, session.WithHost(session.StaticHost(id)))
//	if err := store.Open(ctx, dir, "sid"); err != nil {
//		return err
//	}
//	defer store.Close(ctx)
//	data, _ := store.Read(ctx, "")
//	_ = store.Write(ctx, "", append(data, 'x'))
//
// # Errors
//
// Read fails open: lock timeouts and storage errors produce an empty payload
// and are logged. Write, Destroy and GC return errors such as ErrNotLocked,
// ErrLockTimeout or ErrIOFailure; compare with errors.Is.
package session
