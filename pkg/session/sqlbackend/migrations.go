package sqlbackend

import "embed"

// Migrations holds the goose migrations creating the default sessions table.
// Apply them with pg.Migrate(ctx, pool, sqlbackend.Migrations, sqlbackend.MigrationsDir, log).
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"
