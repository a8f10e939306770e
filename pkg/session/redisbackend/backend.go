package redisbackend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

const lockSuffix = ":lock"

// Backend implements session.Backend on Redis hashes guarded by SET NX locks.
type Backend struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	lockTTL       time.Duration
	lockTimeout   time.Duration
	retryInterval time.Duration
	scanBatch     int64
	now           func() time.Time
	log           *slog.Logger

	name     string
	lockedID string
	token    string
	current  []byte
}

var _ session.Backend = (*Backend)(nil)

// New creates a backend over client.
func New(client redis.UniversalClient, opts ...Option) *Backend {
	b := &Backend{
		client:        client,
		prefix:        DefaultPrefix,
		lockTTL:       DefaultLockTTL,
		lockTimeout:   session.DefaultLockTimeout,
		retryInterval: session.DefaultLockRetryInterval,
		scanBatch:     1000,
		now:           time.Now,
		log:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Backend("redis"))
	return b
}

// Factory returns a BackendFactory creating a fresh Backend per request.
func Factory(client redis.UniversalClient, opts ...Option) session.BackendFactory {
	return func() session.Backend {
		return New(client, opts...)
	}
}

// Open pings the server and records the session name used in keys.
func (b *Backend) Open(ctx context.Context, _, name string) error {
	if b.client == nil {
		return fmt.Errorf("%w: no redis client", session.ErrEnvironmentUnavailable)
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		return errors.Join(session.ErrEnvironmentUnavailable, err)
	}
	b.name = name
	return nil
}

// AcquireLock polls SET NX on the lock key until it is set or the timeout ends.
func (b *Backend) AcquireLock(ctx context.Context, id string) error {
	if b.token != "" {
		if b.lockedID == id {
			return nil
		}
		if err := b.ReleaseLock(ctx, b.lockedID); err != nil {
			b.log.WarnContext(ctx, "failed to release previous lock", logger.SessionID(b.lockedID), logger.Error(err))
		}
	}

	token := uuid.NewString()
	if err := b.waitLock(ctx, b.lockKey(id), token); err != nil {
		return err
	}

	b.lockedID = id
	b.token = token
	b.current = nil
	return nil
}

func (b *Backend) waitLock(ctx context.Context, key, token string) error {
	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(b.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := b.client.SetNX(ctx, key, token, b.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return errors.Join(session.ErrLockTimeout, ctx.Err())
			}
			return errors.Join(session.ErrIOFailure, err)
		}
		if ok {
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

// ReleaseLock deletes the lock key if it still holds this scope's token.
func (b *Backend) ReleaseLock(ctx context.Context, _ string) error {
	if b.token == "" {
		return nil
	}
	key, token := b.lockKey(b.lockedID), b.token
	b.lockedID = ""
	b.token = ""

	ctx = context.WithoutCancel(ctx)
	n, err := releaseScript.Run(ctx, b.client, []string{key}, token).Int()
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if n == 0 {
		b.log.WarnContext(ctx, "lock expired or taken over before release")
	}
	return nil
}

// Fetch loads the record hash.
func (b *Backend) Fetch(ctx context.Context, id string) (*session.Record, error) {
	fields, err := b.client.HGetAll(ctx, b.key(id)).Result()
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	if len(fields) == 0 {
		return nil, session.ErrRecordNotFound
	}

	rec := &session.Record{ID: id, Data: []byte(fields["data"])}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		rec.UpdatedAt = time.Unix(0, ts)
	}

	b.current = bytes.Clone(rec.Data)
	return rec, nil
}

// FetchData loads the payload only.
func (b *Backend) FetchData(ctx context.Context, id string) ([]byte, error) {
	data, err := b.client.HGet(ctx, b.key(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	b.current = bytes.Clone(data)
	return data, nil
}

// Insert creates the record, failing with session.ErrRecordExists if present.
func (b *Backend) Insert(ctx context.Context, id string, data []byte) error {
	return b.write(ctx, modeInsert, id, data, session.ErrRecordExists)
}

// Update overwrites an existing record.
func (b *Backend) Update(ctx context.Context, id string, data []byte) error {
	return b.write(ctx, modeUpdate, id, data, session.ErrRecordNotFound)
}

// Replace writes the record unconditionally.
func (b *Backend) Replace(ctx context.Context, id string, data []byte) error {
	return b.write(ctx, modeReplace, id, data, nil)
}

// Touch refreshes updated_at and the key TTL.
func (b *Backend) Touch(ctx context.Context, id string) error {
	return b.write(ctx, modeTouch, id, nil, session.ErrRecordNotFound)
}

// Delete removes the record. Deleting an absent record is not an error.
func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	b.current = nil
	return nil
}

// DeleteExpired scans the session keys of this name and removes records
// whose updated_at is older than now - maxAge. Lock keys are skipped.
func (b *Backend) DeleteExpired(ctx context.Context, maxAge time.Duration) error {
	cutoff := b.now().Add(-maxAge).UnixNano()
	match := b.prefix + b.name + ":*"

	var (
		cursor  uint64
		removed int64
		errs    []error
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, match, b.scanBatch).Result()
		if err != nil {
			return errors.Join(session.ErrIOFailure, err)
		}

		for _, key := range keys {
			if strings.HasSuffix(key, lockSuffix) {
				continue
			}
			n, err := expireScript.Run(ctx, b.client, []string{key}, cutoff).Int64()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			removed += n
		}

		if cursor = next; cursor == 0 {
			break
		}
	}

	b.log.DebugContext(ctx, "expired sessions removed", slog.Int64("removed", removed))
	if len(errs) > 0 {
		return errors.Join(append([]error{session.ErrIOFailure}, errs...)...)
	}
	return nil
}

// Current returns the payload last read or written through this backend.
func (b *Backend) Current() []byte {
	return b.current
}

func (b *Backend) write(ctx context.Context, mode, id string, data []byte, failed error) error {
	if data == nil {
		data = []byte{}
	}
	n, err := writeScript.Run(ctx, b.client, []string{b.key(id)},
		mode, data, b.now().UnixNano(), b.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if n == 0 {
		return failed
	}
	if mode != modeTouch {
		b.current = bytes.Clone(data)
	}
	return nil
}

func (b *Backend) key(id string) string {
	return b.prefix + b.name + ":" + id
}

func (b *Backend) lockKey(id string) string {
	return b.key(id) + lockSuffix
}
