package rating

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
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

func seedModels(t *testing.T, db *bun.DB, cfg config.RatingConfig) *storage.ModelRepository {
	t.Helper()
	models := storage.NewModelRepository(db)
	require.NoError(t, models.SyncFromRegistry(context.Background(), []config.ModelDescriptor{
		{ID: "m1", Name: "Model 1", Weight: 1},
		{ID: "m2", Name: "Model 2", Weight: 1},
	}, nil, cfg))
	return models
}

func TestEngine_ProcessBattleResult_PeriodPathUpdatesRatingAndCounters(t *testing.T) {
	db := newTestDB(t)
	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06, Tau: 0.5}
	models := seedModels(t, db, ratingCfg)
	pending := storage.NewPendingMatchRepository(db)
	engine := NewEngine(db, models, pending, ratingCfg)

	ctx := context.Background()
	require.NoError(t, engine.ProcessBattleResult(ctx, "m1", "m2", domain.VoteModelA, false))

	a, err := models.Get(ctx, "m1")
	require.NoError(t, err)
	b, err := models.Get(ctx, "m2")
	require.NoError(t, err)

	assert.Greater(t, a.RatingMu, 1500.0)
	assert.Less(t, b.RatingMu, 1500.0)
	assert.Equal(t, 1, a.Battles)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 1, b.Battles)
	assert.Equal(t, 0, b.Wins)
}

func TestEngine_ProcessBattleResult_RealtimeOnlyLeavesPeriodUntouched(t *testing.T) {
	db := newTestDB(t)
	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06, Tau: 0.5}
	models := seedModels(t, db, ratingCfg)
	pending := storage.NewPendingMatchRepository(db)
	engine := NewEngine(db, models, pending, ratingCfg)

	ctx := context.Background()
	require.NoError(t, engine.ProcessBattleResult(ctx, "m1", "m2", domain.VoteModelA, true))

	a, err := models.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, a.RatingMu)
	assert.Greater(t, a.MuRT, 1500.0)
	assert.Equal(t, 1, a.Battles)
}

func TestEngine_ProcessBattleResult_SkipIncrementsSkipsOnly(t *testing.T) {
	db := newTestDB(t)
	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06, Tau: 0.5}
	models := seedModels(t, db, ratingCfg)
	pending := storage.NewPendingMatchRepository(db)
	engine := NewEngine(db, models, pending, ratingCfg)

	ctx := context.Background()
	require.NoError(t, engine.ProcessBattleResult(ctx, "m1", "m2", domain.VoteSkip, false))

	a, err := models.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, a.RatingMu)
	assert.Equal(t, 1, a.Battles)
	assert.Equal(t, 1, a.Skips)
	assert.Equal(t, 0, a.Wins)
}

func TestEngine_RunRatingUpdate_DrainsAndRebaselinesRealtime(t *testing.T) {
	db := newTestDB(t)
	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06, Tau: 0.5}
	models := seedModels(t, db, ratingCfg)
	pending := storage.NewPendingMatchRepository(db)
	engine := NewEngine(db, models, pending, ratingCfg)

	ctx := context.Background()
	require.NoError(t, pending.Append(ctx, &domain.PendingMatch{ModelAID: "m1", ModelBID: "m2", Score: 1.0}))

	require.NoError(t, engine.RunRatingUpdate(ctx))

	a, err := models.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Greater(t, a.RatingMu, 1500.0)
	assert.Equal(t, a.RatingMu, a.MuRT, "realtime triple should be rebaselined to the new period rating")

	remaining, err := pending.DrainAll(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestEngine_RunRatingUpdate_NoOpWhenNoPendingMatches(t *testing.T) {
	db := newTestDB(t)
	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06, Tau: 0.5}
	models := seedModels(t, db, ratingCfg)
	pending := storage.NewPendingMatchRepository(db)
	engine := NewEngine(db, models, pending, ratingCfg)

	require.NoError(t, engine.RunRatingUpdate(context.Background()))
}

func TestGenerateLeaderboard_RanksByRatingAndComputesWinRate(t *testing.T) {
	models := map[string]*domain.Model{
		"m1": {ModelID: "m1", Name: "M1", IsActive: true, RatingMu: 1600, Battles: 4, Wins: 2},
		"m2": {ModelID: "m2", Name: "M2", IsActive: true, RatingMu: 1700, Battles: 2, Wins: 1, Skips: 1},
		"m3": {ModelID: "m3", Name: "M3", IsActive: false, RatingMu: 1900},
	}

	entries := GenerateLeaderboard(models)
	require.Len(t, entries, 2)
	assert.Equal(t, "m2", entries[0].ModelID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "m1", entries[1].ModelID)
	assert.Equal(t, 2, entries[1].Rank)

	assert.InDelta(t, 50.0, entries[1].WinRatePercentage, 0.01)
	assert.InDelta(t, 100.0, entries[0].WinRatePercentage, 0.01)
}
