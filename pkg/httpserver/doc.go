// Package httpserver runs the session daemon's HTTP listener.
//
// Server binds the listener, serves until the context ends, SIGINT or
// SIGTERM arrives, or Shutdown is called, and then drains in-flight requests
// within the shutdown timeout, letting their sessions be written and
// unlocked. Cleanups registered with WithCleanup run after the drain, so storage pools
// and clients outlive every request that uses them.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithCleanup(func(context.Context) error { pool.Close(); return nil }),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// HealthCheckHandler serves liveness (no checks) and readiness (named checks,
// e.g. pg.Healthcheck or redis.Healthcheck) probes.
package httpserver
