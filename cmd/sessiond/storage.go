package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dmitrymomot/sesslock/pkg/config"
	"github.com/dmitrymomot/sesslock/pkg/httpserver"
	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/mongo"
	"github.com/dmitrymomot/sesslock/pkg/pg"
	"github.com/dmitrymomot/sesslock/pkg/redis"
	"github.com/dmitrymomot/sesslock/pkg/session"
	"github.com/dmitrymomot/sesslock/pkg/session/filebackend"
	"github.com/dmitrymomot/sesslock/pkg/session/mongobackend"
	"github.com/dmitrymomot/sesslock/pkg/session/redisbackend"
	"github.com/dmitrymomot/sesslock/pkg/session/sqlbackend"
)

var errUnknownBackend = errors.New("unknown session backend")

// storage is the selected backend with its readiness checks and the
// resources to release on shutdown.
type storage struct {
	factory  session.BackendFactory
	checks   []httpserver.Check
	cleanups []func(context.Context) error
}

func openStorage(ctx context.Context, kind string, cfg session.Config, log *slog.Logger) (*storage, error) {
	var (
		st  *storage
		err error
	)
	switch kind {
	case "", "file":
		st, err = openFile(cfg, log)
	case "memory":
		st = &storage{factory: session.NewMemoryStorage().Factory(session.WithMemoryLockTimeout(cfg.LockTimeout))}
	case "postgres":
		st, err = openPostgres(ctx, cfg, log)
	case "redis":
		st, err = openRedis(ctx, cfg, log)
	case "mongo":
		st, err = openMongo(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, kind)
	}
	if err != nil {
		return nil, err
	}

	// Opening a throwaway backend exercises the same path as a request.
	factory, path, name := st.factory, cfg.SavePath, cfg.CookieName
	st.checks = append(st.checks, httpserver.Check{
		Name: "session-backend",
		Fn: func(ctx context.Context) error {
			return factory().Open(ctx, path, name)
		},
	})

	log.InfoContext(ctx, "session storage ready", logger.Backend(kind))
	return st, nil
}

func openFile(cfg session.Config, log *slog.Logger) (*storage, error) {
	dir := cfg.SavePath
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "sessiond")
	}
	return &storage{
		factory: filebackend.Factory(dir,
			filebackend.WithLockTimeout(cfg.LockTimeout),
			filebackend.WithLogger(log),
		),
	}, nil
}

func openPostgres(ctx context.Context, cfg session.Config, log *slog.Logger) (*storage, error) {
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx, pool, pgCfg, sqlbackend.Migrations, sqlbackend.MigrationsDir, log); err != nil {
		pool.Close()
		return nil, err
	}

	db := pg.OpenDB(pool)
	return &storage{
		factory: sqlbackend.Factory(db,
			sqlbackend.WithLockTimeout(cfg.LockTimeout),
			sqlbackend.WithLogger(log),
		),
		checks: []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
		cleanups: []func(context.Context) error{
			func(context.Context) error { pool.Close(); return nil },
			func(context.Context) error { return db.Close() },
		},
	}, nil
}

func openRedis(ctx context.Context, cfg session.Config, log *slog.Logger) (*storage, error) {
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, err
	}

	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, err
	}

	return &storage{
		factory: redisbackend.Factory(client,
			redisbackend.WithPrefix(redisCfg.KeyPrefix),
			redisbackend.WithTTL(redisCfg.SessionTTL),
			redisbackend.WithLockTimeout(cfg.LockTimeout),
			redisbackend.WithLogger(log),
		),
		checks: []httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}},
		cleanups: []func(context.Context) error{
			func(context.Context) error { return client.Close() },
		},
	}, nil
}

func openMongo(ctx context.Context, cfg session.Config, log *slog.Logger) (*storage, error) {
	var mongoCfg mongo.Config
	if err := config.Load(&mongoCfg); err != nil {
		return nil, err
	}

	db, err := mongo.NewWithDatabase(ctx, mongoCfg, "")
	if err != nil {
		return nil, err
	}

	return &storage{
		factory: mongobackend.Factory(db,
			mongobackend.WithLockTimeout(cfg.LockTimeout),
			mongobackend.WithLogger(log),
		),
		checks: []httpserver.Check{{Name: "mongo", Fn: mongo.Healthcheck(db.Client())}},
		cleanups: []func(context.Context) error{
			func(ctx context.Context) error { return db.Client().Disconnect(ctx) },
		},
	}, nil
}
