package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/ratingarena/server/migrations"
)

// newTestDB opens a fresh in-memory SQLite database and applies every
// migration, giving each test an isolated schema.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := NewDB(&Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	migrator, err := NewMigrator(db, migrations.FS)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	require.NoError(t, migrator.Up(ctx))

	return db
}
