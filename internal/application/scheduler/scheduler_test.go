package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/application/rating"
	"github.com/ratingarena/server/internal/application/tiermanager"
	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
	"github.com/ratingarena/server/migrations"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := storage.NewDB(&storage.Config{Path: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	migrator, err := storage.NewMigrator(db, migrations.FS)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	require.NoError(t, migrator.Up(ctx))

	return db
}

func testLogger() *logger.Logger {
	return logger.New(config.LoggingConfig{Level: "error", Format: "text"})
}

func newTestScheduler(t *testing.T, db *bun.DB, path config.PathsConfig) *Scheduler {
	t.Helper()
	models := storage.NewModelRepository(db)
	battles := storage.NewBattleRepository(db)
	pending := storage.NewPendingMatchRepository(db)
	registry := config.NewRegistry(&config.Config{Paths: path})
	engine := rating.NewEngine(db, models, pending, config.RatingConfig{})
	tiers := tiermanager.NewManager(models, testLogger(), 1)

	return New(battles, models, registry, engine, tiers, testLogger(),
		config.RateLimitConfig{}, config.DatabaseConfig{Path: path.DataDir}, config.RatingConfig{}, path)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))

	dst := filepath.Join(dir, "dst.db")
	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestPruneBackups_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"a.db", "b.db", "c.db"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		mtime := time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	require.NoError(t, pruneBackups(dir, 2))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	assert.True(t, names["b.db"])
	assert.True(t, names["c.db"])
	assert.False(t, names["a.db"])
}

func TestPruneBackups_NoopWhenKeepIsZero(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), []byte("x"), 0o600))
	require.NoError(t, pruneBackups(dir, 0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScheduler_BackupOnce_CopiesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "arena.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite-bytes"), 0o600))
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0o755))

	db := newTestDB(t)
	path := config.PathsConfig{DataDir: dbPath, BackupDir: backupDir, MaxBackups: 5}
	s := newTestScheduler(t, db, path)
	s.db = config.DatabaseConfig{Path: dbPath}

	require.NoError(t, s.backupOnce())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "arena_")
}

func TestScheduler_HandleConfigChange_ReloadsModels(t *testing.T) {
	dir := t.TempDir()
	modelsPath := filepath.Join(dir, "models.json")
	require.NoError(t, os.WriteFile(modelsPath, []byte(`{"models":[{"id":"m1","name":"M1","weight":1}]}`), 0o600))
	promptsPath := filepath.Join(dir, "fixed_prompts.json")
	require.NoError(t, os.WriteFile(promptsPath, []byte(`{"prompts":{}}`), 0o600))

	db := newTestDB(t)
	path := config.PathsConfig{ModelsFile: modelsPath, FixedPromptsFile: promptsPath}
	s := newTestScheduler(t, db, path)

	s.handleConfigChange(context.Background(), modelsPath)

	models := storage.NewModelRepository(db)
	all, err := models.All(context.Background())
	require.NoError(t, err)
	assert.Contains(t, all, "m1")
}
