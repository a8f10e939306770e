// Package pg bootstraps PostgreSQL access for the SQL session backend using
// the pgx/v5 driver.
//
// Connect opens a *pgxpool.Pool with retries, Healthcheck adapts it to
// readiness probes, Migrate applies goose migrations from any fs.FS and OpenDB
// bridges the pool to database/sql for code (squirrel queries, goose) that
// expects *sql.DB.
//
// Config is populated from environment variables:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, sqlbackend.Migrations, sqlbackend.MigrationsDir, log); err != nil {
//		return err
//	}
//	db := pg.OpenDB(pool)
//
// Every session lock held by the SQL backend pins one pooled connection, so
// MaxOpenConns should exceed the expected number of concurrent requests.
package pg
