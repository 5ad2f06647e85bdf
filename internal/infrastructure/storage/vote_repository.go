package storage

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/domain"
)

// VoteRepository persists the immutable vote audit trail.
type VoteRepository struct {
	db *bun.DB
}

// NewVoteRepository constructs a VoteRepository.
func NewVoteRepository(db *bun.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// Insert appends a vote record.
func (r *VoteRepository) Insert(ctx context.Context, v *domain.VoteRecord) error {
	_, err := IDB(ctx, r.db).NewInsert().Model(v).Exec(ctx)
	return err
}

// RecentByHash returns the caller's votes within the window, newest first —
// used by the vote controller's anti-cheat checks (§4.H).
func (r *VoteRepository) RecentByHash(ctx context.Context, callerHash string, since time.Time) ([]*domain.VoteRecord, error) {
	var rows []*domain.VoteRecord
	err := IDB(ctx, r.db).NewSelect().Model(&rows).
		Where("caller_hash = ?", callerHash).
		Where("timestamp >= ?", since).
		OrderExpr("timestamp DESC").
		Scan(ctx)
	return rows, err
}
