package mongobackend

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// indexer creates the indexes once per factory. A failed attempt is retried
// by the next Open.
type indexer struct {
	mu   sync.Mutex
	done bool
}

func (ix *indexer) ensure(ctx context.Context, records, locks *mongo.Collection) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.done {
		return nil
	}

	if _, err := records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}, {Key: "updated_at", Value: 1}},
	}); err != nil {
		return err
	}
	// Lets the server drop locks of crashed holders on its own.
	if _, err := locks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}); err != nil {
		return err
	}

	ix.done = true
	return nil
}
