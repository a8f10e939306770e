// Package sqlbackend stores sessions in a PostgreSQL table and serialises
// access with session-level advisory locks.
//
// While a lock is held the backend pins one connection from the pool, since
// advisory locks belong to the connection that took them. All statements of
// the lock scope run on that connection, and releasing the lock returns it to
// the pool.
//
// The table layout is shipped as an embedded goose migration (Migrations).
// Queries are built with squirrel using dollar placeholders and run through
// database/sql, typically backed by pgx:
//
//	pool, _ := pg.Connect(ctx, cfg)
//	db := pg.OpenDB(pool)
//	mw := session.Middleware(sqlbackend.Factory(db, sqlbackend.WithLockTimeout(10*time.Second)))
package sqlbackend
