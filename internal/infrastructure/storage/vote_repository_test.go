package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratingarena/server/internal/domain"
)

func TestVoteRepository_InsertAndRecentByHash(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, &domain.VoteRecord{
		Timestamp:  now,
		BattleID:   "battle-1",
		Choice:     domain.VoteModelA,
		CallerID:   "caller-1",
		CallerHash: "hash-1",
	}))
	require.NoError(t, repo.Insert(ctx, &domain.VoteRecord{
		Timestamp:  now.Add(-2 * time.Hour),
		BattleID:   "battle-0",
		Choice:     domain.VoteModelB,
		CallerID:   "caller-1",
		CallerHash: "hash-1",
	}))

	recent, err := repo.RecentByHash(ctx, "hash-1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1, "the vote outside the window must be excluded")
	assert.Equal(t, "battle-1", recent[0].BattleID)
}
