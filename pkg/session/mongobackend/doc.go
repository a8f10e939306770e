// Package mongobackend stores sessions in a MongoDB collection.
//
// Records are documents {_id: "<name>:<id>", name, data, updated_at}. The
// session lock is a document in a separate collection keyed the same way and
// carrying a random owner and an expiry. A lock whose expiry has passed may be
// taken over by the next caller, and a TTL index lets the server purge
// abandoned lock documents.
//
//	db, _ := mongo.NewWithDatabase(ctx, cfg, "")
//	mw := session.Middleware(mongobackend.Factory(db, mongobackend.WithLockTTL(time.Minute)))
package mongobackend
