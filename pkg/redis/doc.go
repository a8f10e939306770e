// Package redis connects to the Redis server used by the redis session backend.
//
// Connect retries until the server answers a ping or the connect timeout
// elapses. Healthcheck adapts a client into a readiness probe for
// httpserver.HealthCheckHandler.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	factory := redisbackend.Factory(client,
//		redisbackend.WithPrefix(cfg.KeyPrefix),
//		redisbackend.WithTTL(cfg.SessionTTL),
//	)
package redis
