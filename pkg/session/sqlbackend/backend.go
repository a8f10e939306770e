package sqlbackend

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/pg"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	tryLockQuery = `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`
	unlockQuery  = `SELECT pg_advisory_unlock(hashtextextended($1, 0))`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backend implements session.Backend on a PostgreSQL table.
type Backend struct {
	db            *sql.DB
	table         string
	lockTimeout   time.Duration
	retryInterval time.Duration
	now           func() time.Time
	log           *slog.Logger

	conn     *sql.Conn
	lockedID string
	current  []byte
}

var _ session.Backend = (*Backend)(nil)

// New creates a backend over db.
func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{
		db:            db,
		table:         DefaultTable,
		lockTimeout:   session.DefaultLockTimeout,
		retryInterval: session.DefaultLockRetryInterval,
		now:           time.Now,
		log:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Backend("postgres"))
	return b
}

// Factory returns a BackendFactory creating a fresh Backend per request.
func Factory(db *sql.DB, opts ...Option) session.BackendFactory {
	return func() session.Backend {
		return New(db, opts...)
	}
}

// Open checks that the database is reachable. path and name are not used.
func (b *Backend) Open(ctx context.Context, _, _ string) error {
	if b.db == nil {
		return fmt.Errorf("%w: no database", session.ErrEnvironmentUnavailable)
	}
	if err := b.db.PingContext(ctx); err != nil {
		return errors.Join(session.ErrEnvironmentUnavailable, err)
	}
	return nil
}

// AcquireLock pins a connection and polls pg_try_advisory_lock until the
// timeout or ctx ends.
func (b *Backend) AcquireLock(ctx context.Context, id string) error {
	if b.conn != nil {
		if b.lockedID == id {
			return nil
		}
		if err := b.ReleaseLock(ctx, b.lockedID); err != nil {
			b.log.WarnContext(ctx, "failed to release previous advisory lock", logger.SessionID(b.lockedID), logger.Error(err))
		}
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}

	if err := b.waitLock(ctx, conn, id); err != nil {
		conn.Close()
		return err
	}

	b.conn = conn
	b.lockedID = id
	b.current = nil
	return nil
}

func (b *Backend) waitLock(ctx context.Context, conn *sql.Conn, id string) error {
	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(b.retryInterval)
	defer ticker.Stop()

	key := b.lockKey(id)
	for {
		var locked bool
		if err := conn.QueryRowContext(ctx, tryLockQuery, key).Scan(&locked); err != nil {
			if ctx.Err() != nil {
				return errors.Join(session.ErrLockTimeout, ctx.Err())
			}
			return errors.Join(session.ErrIOFailure, err)
		}
		if locked {
			return nil
		}

		select {
		case <-ticker.C:
		case <-timer.C:
			return session.ErrLockTimeout
		case <-ctx.Done():
			return errors.Join(session.ErrLockTimeout, ctx.Err())
		}
	}
}

// ReleaseLock drops the advisory lock and returns the pinned connection to the
// pool. A connection whose unlock failed is discarded so the lock dies with it.
func (b *Backend) ReleaseLock(ctx context.Context, _ string) error {
	if b.conn == nil {
		return nil
	}
	conn, key := b.conn, b.lockKey(b.lockedID)
	b.conn = nil
	b.lockedID = ""

	ctx = context.WithoutCancel(ctx)
	var released bool
	if err := conn.QueryRowContext(ctx, unlockQuery, key).Scan(&released); err != nil {
		b.log.WarnContext(ctx, "advisory unlock failed, discarding connection", logger.Error(err))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		return errors.Join(session.ErrIOFailure, err)
	}
	if !released {
		b.log.WarnContext(ctx, "advisory lock was not held at release")
	}
	if err := conn.Close(); err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	return nil
}

// Fetch loads the record.
func (b *Backend) Fetch(ctx context.Context, id string) (*session.Record, error) {
	query, args, err := psq.Select("data", "updated_at").
		From(b.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	rec := &session.Record{ID: id}
	err = b.q().QueryRowContext(ctx, query, args...).Scan(&rec.Data, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	if rec.Data == nil {
		rec.Data = []byte{}
	}

	b.current = bytes.Clone(rec.Data)
	return rec, nil
}

// FetchData loads the payload only.
func (b *Backend) FetchData(ctx context.Context, id string) ([]byte, error) {
	rec, err := b.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Insert adds a record, failing with session.ErrRecordExists on a duplicate id.
func (b *Backend) Insert(ctx context.Context, id string, data []byte) error {
	qb := psq.Insert(b.table).
		Columns("id", "data", "updated_at").
		Values(id, nonNil(data), b.now())

	if err := b.exec(ctx, qb); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return session.ErrRecordExists
		}
		return err
	}
	b.current = bytes.Clone(data)
	return nil
}

// Update overwrites an existing record.
func (b *Backend) Update(ctx context.Context, id string, data []byte) error {
	qb := psq.Update(b.table).
		Set("data", nonNil(data)).
		Set("updated_at", b.now()).
		Where(sq.Eq{"id": id})

	if err := b.execAffecting(ctx, qb); err != nil {
		return err
	}
	b.current = bytes.Clone(data)
	return nil
}

// Replace upserts the record.
func (b *Backend) Replace(ctx context.Context, id string, data []byte) error {
	qb := psq.Insert(b.table).
		Columns("id", "data", "updated_at").
		Values(id, nonNil(data), b.now()).
		Suffix("ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at")

	if err := b.exec(ctx, qb); err != nil {
		return err
	}
	b.current = bytes.Clone(data)
	return nil
}

// Touch refreshes updated_at.
func (b *Backend) Touch(ctx context.Context, id string) error {
	qb := psq.Update(b.table).
		Set("updated_at", b.now()).
		Where(sq.Eq{"id": id})
	return b.execAffecting(ctx, qb)
}

// Delete removes the record. Deleting an absent record is not an error.
func (b *Backend) Delete(ctx context.Context, id string) error {
	qb := psq.Delete(b.table).Where(sq.Eq{"id": id})
	if err := b.exec(ctx, qb); err != nil {
		return err
	}
	b.current = nil
	return nil
}

// DeleteExpired removes records whose updated_at is older than now - maxAge.
func (b *Backend) DeleteExpired(ctx context.Context, maxAge time.Duration) error {
	cutoff := b.now().Add(-maxAge)
	query, args, err := psq.Delete(b.table).Where(sq.Lt{"updated_at": cutoff}).ToSql()
	if err != nil {
		return fmt.Errorf("building session cleanup: %w", err)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		b.log.DebugContext(ctx, "expired sessions removed", slog.Int64("removed", n))
	}
	return nil
}

// Current returns the payload last read or written through this backend.
func (b *Backend) Current() []byte {
	return b.current
}

// q returns the pinned connection while a lock is held, the pool otherwise.
func (b *Backend) q() querier {
	if b.conn != nil {
		return b.conn
	}
	return b.db
}

func (b *Backend) exec(ctx context.Context, qb sq.Sqlizer) error {
	_, err := b.run(ctx, qb)
	return err
}

func (b *Backend) execAffecting(ctx context.Context, qb sq.Sqlizer) error {
	res, err := b.run(ctx, qb)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if n == 0 {
		return session.ErrRecordNotFound
	}
	return nil
}

func (b *Backend) run(ctx context.Context, qb sq.Sqlizer) (sql.Result, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session statement: %w", err)
	}
	res, err := b.q().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	return res, nil
}

func (b *Backend) lockKey(id string) string {
	return b.table + ":" + id
}

// nonNil keeps NOT NULL columns satisfied for empty payloads.
func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
