// Package mongo connects to the MongoDB deployment used by the mongo session
// backend.
//
// New retries until the server answers a ping, NewWithDatabase additionally
// selects the session database, and Healthcheck adapts a client into a
// readiness probe.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "")
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	factory := mongobackend.Factory(db)
package mongo
