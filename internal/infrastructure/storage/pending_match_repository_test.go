package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratingarena/server/internal/domain"
)

func TestPendingMatchRepository_AppendAndDrainAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewPendingMatchRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, &domain.PendingMatch{ModelAID: "model-a", ModelBID: "model-b", Score: 1, CreatedAt: now}))
	require.NoError(t, repo.Append(ctx, &domain.PendingMatch{ModelAID: "model-c", ModelBID: "model-d", Score: 0.5, CreatedAt: now}))

	drained, err := repo.DrainAll(ctx, db)
	require.NoError(t, err)
	require.Len(t, drained, 2)

	// A second drain must see nothing: the first drain deleted every row.
	drained, err = repo.DrainAll(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, drained)
}
