package pg_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/pg"
)

func TestMigrateMissingDir(t *testing.T) {
	fsys := fstest.MapFS{"other/00001_init.sql": &fstest.MapFile{Data: []byte("-- +goose Up\n")}}

	err := pg.Migrate(context.Background(), nil, pg.Config{}, fsys, "migrations", logger.Discard())
	assert.ErrorIs(t, err, pg.ErrMigrationsDirNotFound)
}
