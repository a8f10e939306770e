package mongobackend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

type record struct {
	Key       string    `bson:"_id"`
	Name      string    `bson:"name"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type lockDoc struct {
	Key       string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Backend implements session.Backend on two MongoDB collections: one for
// records and one for lock documents.
type Backend struct {
	db             *mongo.Database
	collection     string
	lockCollection string
	lockTTL        time.Duration
	lockTimeout    time.Duration
	retryInterval  time.Duration
	now            func() time.Time
	log            *slog.Logger
	indexes        *indexer

	records  *mongo.Collection
	locks    *mongo.Collection
	name     string
	lockedID string
	owner    string
	current  []byte
}

var _ session.Backend = (*Backend)(nil)

// New creates a backend over db.
func New(db *mongo.Database, opts ...Option) *Backend {
	return newBackend(db, &indexer{}, opts...)
}

// Factory returns a BackendFactory creating a fresh Backend per request.
// Indexes are created by the first successful Open.
func Factory(db *mongo.Database, opts ...Option) session.BackendFactory {
	ix := &indexer{}
	return func() session.Backend {
		return newBackend(db, ix, opts...)
	}
}

func newBackend(db *mongo.Database, ix *indexer, opts ...Option) *Backend {
	b := &Backend{
		db:             db,
		collection:     DefaultCollection,
		lockCollection: DefaultLockCollection,
		lockTTL:        DefaultLockTTL,
		lockTimeout:    session.DefaultLockTimeout,
		retryInterval:  session.DefaultLockRetryInterval,
		now:            time.Now,
		log:            logger.Discard(),
		indexes:        ix,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Backend("mongo"))
	if db != nil {
		b.records = db.Collection(b.collection)
		b.locks = db.Collection(b.lockCollection)
	}
	return b
}

// Open pings the deployment and ensures the indexes exist.
func (b *Backend) Open(ctx context.Context, _, name string) error {
	if b.db == nil {
		return fmt.Errorf("%w: no mongo database", session.ErrEnvironmentUnavailable)
	}
	if err := b.db.Client().Ping(ctx, nil); err != nil {
		return errors.Join(session.ErrEnvironmentUnavailable, err)
	}
	if err := b.indexes.ensure(ctx, b.records, b.locks); err != nil {
		return errors.Join(session.ErrEnvironmentUnavailable, err)
	}
	b.name = name
	return nil
}

// AcquireLock inserts a lock document, taking over an expired one, and
// polls until it succeeds or the timeout ends.
func (b *Backend) AcquireLock(ctx context.Context, id string) error {
	if b.owner != "" {
		if b.lockedID == id {
			return nil
		}
		if err := b.ReleaseLock(ctx, b.lockedID); err != nil {
			b.log.WarnContext(ctx, "failed to release previous lock", logger.SessionID(b.lockedID), logger.Error(err))
		}
	}

	owner := uuid.NewString()
	if err := b.waitLock(ctx, b.key(id), owner); err != nil {
		return err
	}

	b.lockedID = id
	b.owner = owner
	b.current = nil
	return nil
}

func (b *Backend) waitLock(ctx context.Context, key, owner string) error {
	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(b.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := b.tryLock(ctx, key, owner)
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

func (b *Backend) tryLock(ctx context.Context, key, owner string) (bool, error) {
	now := b.now()
	expires := now.Add(b.lockTTL)

	_, err := b.locks.InsertOne(ctx, lockDoc{Key: key, Owner: owner, ExpiresAt: expires})
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, err
	}

	err = b.locks.FindOneAndUpdate(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"owner": owner, "expires_at": expires}},
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b.log.WarnContext(ctx, "took over expired session lock", slog.String("key", key))
	return true, nil
}

// ReleaseLock removes the lock document if this scope still owns it.
func (b *Backend) ReleaseLock(ctx context.Context, _ string) error {
	if b.owner == "" {
		return nil
	}
	key, owner := b.key(b.lockedID), b.owner
	b.lockedID = ""
	b.owner = ""

	ctx = context.WithoutCancel(ctx)
	res, err := b.locks.DeleteOne(ctx, bson.M{"_id": key, "owner": owner})
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if res.DeletedCount == 0 {
		b.log.WarnContext(ctx, "lock expired or taken over before release")
	}
	return nil
}

// Fetch loads the record.
func (b *Backend) Fetch(ctx context.Context, id string) (*session.Record, error) {
	var doc record
	err := b.records.FindOne(ctx, bson.M{"_id": b.key(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	if doc.Data == nil {
		doc.Data = []byte{}
	}

	b.current = bytes.Clone(doc.Data)
	return &session.Record{ID: id, Data: doc.Data, UpdatedAt: doc.UpdatedAt}, nil
}

// FetchData loads the payload only.
func (b *Backend) FetchData(ctx context.Context, id string) ([]byte, error) {
	rec, err := b.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Insert creates the record, failing with session.ErrRecordExists on a duplicate id.
func (b *Backend) Insert(ctx context.Context, id string, data []byte) error {
	if _, err := b.records.InsertOne(ctx, b.newRecord(id, data)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return session.ErrRecordExists
		}
		return errors.Join(session.ErrIOFailure, err)
	}
	b.current = bytes.Clone(data)
	return nil
}

// Update overwrites an existing record.
func (b *Backend) Update(ctx context.Context, id string, data []byte) error {
	err := b.updateOne(ctx, id, bson.M{"data": nonNil(data), "updated_at": b.now()})
	if err != nil {
		return err
	}
	b.current = bytes.Clone(data)
	return nil
}

// Replace upserts the record.
func (b *Backend) Replace(ctx context.Context, id string, data []byte) error {
	_, err := b.records.ReplaceOne(ctx,
		bson.M{"_id": b.key(id)},
		b.newRecord(id, data),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	b.current = bytes.Clone(data)
	return nil
}

// Touch refreshes updated_at.
func (b *Backend) Touch(ctx context.Context, id string) error {
	return b.updateOne(ctx, id, bson.M{"updated_at": b.now()})
}

// Delete removes the record. Deleting an absent record is not an error.
func (b *Backend) Delete(ctx context.Context, id string) error {
	if _, err := b.records.DeleteOne(ctx, bson.M{"_id": b.key(id)}); err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	b.current = nil
	return nil
}

// DeleteExpired removes records of this session name with updated_at older
// than now - maxAge.
func (b *Backend) DeleteExpired(ctx context.Context, maxAge time.Duration) error {
	cutoff := b.now().Add(-maxAge)
	res, err := b.records.DeleteMany(ctx, bson.M{
		"name":       b.name,
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	b.log.DebugContext(ctx, "expired sessions removed", slog.Int64("removed", res.DeletedCount))
	return nil
}

// Current returns the payload last read or written through this backend.
func (b *Backend) Current() []byte {
	return b.current
}

func (b *Backend) updateOne(ctx context.Context, id string, set bson.M) error {
	res, err := b.records.UpdateOne(ctx, bson.M{"_id": b.key(id)}, bson.M{"$set": set})
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if res.MatchedCount == 0 {
		return session.ErrRecordNotFound
	}
	return nil
}

func (b *Backend) newRecord(id string, data []byte) record {
	return record{Key: b.key(id), Name: b.name, Data: nonNil(data), UpdatedAt: b.now()}
}

func (b *Backend) key(id string) string {
	return b.name + ":" + id
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
