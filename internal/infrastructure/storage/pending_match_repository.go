package storage

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/domain"
)

// PendingMatchRepository persists deferred-rating-update rows.
type PendingMatchRepository struct {
	db *bun.DB
}

// NewPendingMatchRepository constructs a PendingMatchRepository.
func NewPendingMatchRepository(db *bun.DB) *PendingMatchRepository {
	return &PendingMatchRepository{db: db}
}

// Append appends a deferred match outcome (§4.H step 2 periodic branch).
func (r *PendingMatchRepository) Append(ctx context.Context, m *domain.PendingMatch) error {
	_, err := IDB(ctx, r.db).NewInsert().Model(m).Exec(ctx)
	return err
}

// DrainAll atomically fetches and deletes every pending match row in one
// transaction, so a crash between the two steps cannot lose or duplicate
// match outcomes (§4.D batch path, §8 invariant 5).
func (r *PendingMatchRepository) DrainAll(ctx context.Context, db *bun.DB) ([]*domain.PendingMatch, error) {
	var rows []*domain.PendingMatch
	err := WithTransaction(ctx, db, func(ctx context.Context, tx bun.IDB) error {
		if err := tx.NewSelect().Model(&rows).Scan(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewDelete().Model((*domain.PendingMatch)(nil)).Where("1=1").Exec(ctx)
		return err
	})
	return rows, err
}
