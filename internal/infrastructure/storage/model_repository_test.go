package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
)

func TestModelRepository_SyncFromRegistry_InsertsAndNeverDeletes(t *testing.T) {
	db := newTestDB(t)
	repo := NewModelRepository(db)
	ctx := context.Background()

	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06}
	descriptors := []config.ModelDescriptor{
		{ID: "model-a", Name: "Model A", Weight: 1},
		{ID: "model-b", Name: "Model B", Weight: 1},
	}

	require.NoError(t, repo.SyncFromRegistry(ctx, descriptors, nil, ratingCfg))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1500.0, all["model-a"].RatingMu)
	assert.Equal(t, domain.TierLow, all["model-a"].Tier)

	// Re-sync with model-a renamed and model-b dropped from the descriptor
	// list: the rename applies, but model-b's row must survive.
	renamed := []config.ModelDescriptor{
		{ID: "model-a", Name: "Model A Renamed", Weight: 1},
	}
	require.NoError(t, repo.SyncFromRegistry(ctx, renamed, nil, ratingCfg))

	all, err = repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "SyncFromRegistry must never delete rows")
	assert.Equal(t, "Model A Renamed", all["model-a"].Name)
	assert.Equal(t, "Model B", all["model-b"].Name)
}

func TestModelRepository_SyncFromRegistry_SeedsFromScores(t *testing.T) {
	db := newTestDB(t)
	repo := NewModelRepository(db)
	ctx := context.Background()

	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06}
	rd := 80.0
	seeds := map[string]config.ModelScoreSeed{
		"model-a": {Rating: 1800, RD: &rd, Volatility: 0.05, Tier: string(domain.TierHigh)},
	}

	require.NoError(t, repo.SyncFromRegistry(ctx, []config.ModelDescriptor{{ID: "model-a", Name: "Model A", Weight: 1}}, seeds, ratingCfg))

	m, err := repo.Get(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, 1800.0, m.RatingMu)
	assert.Equal(t, 80.0, m.RatingPhi)
	assert.Equal(t, 0.05, m.Sigma)
	assert.Equal(t, domain.TierHigh, m.Tier)
}

func TestModelRepository_ActiveByTier_SplitsAndSortsByRating(t *testing.T) {
	db := newTestDB(t)
	repo := NewModelRepository(db)
	ctx := context.Background()

	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06}
	rdHigh, rdLow := 70.0, 70.0
	seeds := map[string]config.ModelScoreSeed{
		"weak-high":   {Rating: 1600, RD: &rdHigh, Tier: string(domain.TierHigh)},
		"strong-high": {Rating: 1900, RD: &rdHigh, Tier: string(domain.TierHigh)},
		"only-low":    {Rating: 1400, RD: &rdLow, Tier: string(domain.TierLow)},
	}
	descriptors := []config.ModelDescriptor{
		{ID: "weak-high", Name: "Weak High", Weight: 1},
		{ID: "strong-high", Name: "Strong High", Weight: 1},
		{ID: "only-low", Name: "Only Low", Weight: 1},
	}
	require.NoError(t, repo.SyncFromRegistry(ctx, descriptors, seeds, ratingCfg))

	high, low, err := repo.ActiveByTier(ctx)
	require.NoError(t, err)
	require.Len(t, high, 2)
	require.Len(t, low, 1)
	assert.Equal(t, "strong-high", high[0].ModelID, "high tier must be sorted by rating descending")
	assert.Equal(t, "weak-high", high[1].ModelID)
}

func TestModelRepository_UpdateRatingsAndRealtimeOnly(t *testing.T) {
	db := newTestDB(t)
	repo := NewModelRepository(db)
	ctx := context.Background()

	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06}
	require.NoError(t, repo.SyncFromRegistry(ctx, []config.ModelDescriptor{{ID: "model-a", Name: "A", Weight: 1}}, nil, ratingCfg))

	require.NoError(t, repo.UpdateRatings(ctx, "model-a", domain.RatingTriple{Mu: 1550, Phi: 300, Sigma: 0.06}, domain.RatingTriple{Mu: 1560, Phi: 290, Sigma: 0.06}, 1, 1, 0, 0))
	m, err := repo.Get(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, 1550.0, m.RatingMu)
	assert.Equal(t, 1560.0, m.MuRT)
	assert.Equal(t, 1, m.Battles)
	assert.Equal(t, 1, m.Wins)

	require.NoError(t, repo.UpdateRealtimeOnly(ctx, "model-a", domain.RatingTriple{Mu: 1580, Phi: 280, Sigma: 0.06}, 1, 0, 1, 0))
	m, err = repo.Get(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, 1550.0, m.RatingMu, "realtime-only update must not touch the period triple")
	assert.Equal(t, 1580.0, m.MuRT)
	assert.Equal(t, 2, m.Battles)
	assert.Equal(t, 1, m.Ties)
}

func TestModelRepository_BulkSetTier(t *testing.T) {
	db := newTestDB(t)
	repo := NewModelRepository(db)
	ctx := context.Background()

	ratingCfg := config.RatingConfig{DefaultMu: 1500, DefaultPhi: 350, DefaultSigma: 0.06}
	descriptors := []config.ModelDescriptor{
		{ID: "model-a", Name: "A", Weight: 1},
		{ID: "model-b", Name: "B", Weight: 1},
	}
	require.NoError(t, repo.SyncFromRegistry(ctx, descriptors, nil, ratingCfg))

	require.NoError(t, repo.BulkSetTier(ctx, []string{"model-a", "model-b"}, domain.TierHigh))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TierHigh, all["model-a"].Tier)
	assert.Equal(t, domain.TierHigh, all["model-b"].Tier)
}
