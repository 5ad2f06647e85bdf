package storage

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
)

// ModelRepository persists domain.Model rows.
type ModelRepository struct {
	db *bun.DB
}

// NewModelRepository constructs a ModelRepository.
func NewModelRepository(db *bun.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// All returns every model keyed by model id.
func (r *ModelRepository) All(ctx context.Context) (map[string]*domain.Model, error) {
	var rows []*domain.Model
	if err := IDB(ctx, r.db).NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Model, len(rows))
	for _, m := range rows {
		out[m.ModelID] = m
	}
	return out, nil
}

// ActiveByTier returns active models split by tier, each sorted by period
// rating descending (§4.F step 1).
func (r *ModelRepository) ActiveByTier(ctx context.Context) (high, low []*domain.Model, err error) {
	var rows []*domain.Model
	if err := IDB(ctx, r.db).NewSelect().Model(&rows).
		Where("is_active = ?", true).
		OrderExpr("rating_mu DESC").
		Scan(ctx); err != nil {
		return nil, nil, err
	}
	for _, m := range rows {
		if m.Tier == domain.TierHigh {
			high = append(high, m)
		} else {
			low = append(low, m)
		}
	}
	return high, low, nil
}

// Get fetches a single model by id.
func (r *ModelRepository) Get(ctx context.Context, modelID string) (*domain.Model, error) {
	m := new(domain.Model)
	err := IDB(ctx, r.db).NewSelect().Model(m).Where("model_id = ?", modelID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SyncFromRegistry upserts the models table against the configured model
// list: insert new ids (seeded from model_scores.json if present, else
// Glicko-2 defaults), update names for existing ids, never remove rows
// (§4.B).
func (r *ModelRepository) SyncFromRegistry(ctx context.Context, descriptors []config.ModelDescriptor, seeds map[string]config.ModelScoreSeed, ratingCfg config.RatingConfig) error {
	return WithTransaction(ctx, r.db, func(ctx context.Context, tx bun.IDB) error {
		existing, err := r.All(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, d := range descriptors {
			if m, ok := existing[d.ID]; ok {
				if m.Name != d.Name {
					_, err := tx.NewUpdate().Model((*domain.Model)(nil)).
						Set("name = ?", d.Name).
						Set("updated_at = ?", now).
						Where("model_id = ?", d.ID).
						Exec(ctx)
					if err != nil {
						return err
					}
				}
				continue
			}

			mu, phi, sigma := ratingCfg.DefaultMu, ratingCfg.DefaultPhi, ratingCfg.DefaultSigma
			tier := domain.TierLow
			if seed, ok := seeds[d.ID]; ok {
				mu = seed.Rating
				if seed.RD != nil {
					phi = *seed.RD
				}
				if seed.Volatility > 0 {
					sigma = seed.Volatility
				}
				if seed.Tier == string(domain.TierHigh) {
					tier = domain.TierHigh
				}
			}

			newModel := &domain.Model{
				ModelID:   d.ID,
				Name:      d.Name,
				Tier:      tier,
				IsActive:  true,
				Weight:    d.Weight,
				RatingMu:  mu,
				RatingPhi: phi,
				Sigma:     sigma,
				MuRT:      mu,
				PhiRT:     phi,
				SigmaRT:   sigma,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if newModel.Weight == 0 {
				newModel.Weight = 1.0
			}
			if _, err := tx.NewInsert().Model(newModel).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateRatings applies a partial-column update of the rating triples and
// counters for one model (§9: partial update rather than full-row rewrite).
func (r *ModelRepository) UpdateRatings(ctx context.Context, modelID string, t domain.RatingTriple, realtime domain.RatingTriple, battlesDelta, winsDelta, tiesDelta, skipsDelta int) error {
	idb := IDB(ctx, r.db)
	_, err := idb.NewUpdate().Model((*domain.Model)(nil)).
		Set("rating_mu = ?", t.Mu).
		Set("rating_phi = ?", t.Phi).
		Set("sigma = ?", t.Sigma).
		Set("mu_rt = ?", realtime.Mu).
		Set("phi_rt = ?", realtime.Phi).
		Set("sigma_rt = ?", realtime.Sigma).
		Set("battles = battles + ?", battlesDelta).
		Set("wins = wins + ?", winsDelta).
		Set("ties = ties + ?", tiesDelta).
		Set("skips = skips + ?", skipsDelta).
		Set("updated_at = ?", time.Now().UTC()).
		Where("model_id = ?", modelID).
		Exec(ctx)
	return err
}

// UpdateRealtimeOnly updates only the real-time triple and counters, used
// on the vote path when a rating period is active (§4.H step 2).
func (r *ModelRepository) UpdateRealtimeOnly(ctx context.Context, modelID string, realtime domain.RatingTriple, battlesDelta, winsDelta, tiesDelta, skipsDelta int) error {
	idb := IDB(ctx, r.db)
	_, err := idb.NewUpdate().Model((*domain.Model)(nil)).
		Set("mu_rt = ?", realtime.Mu).
		Set("phi_rt = ?", realtime.Phi).
		Set("sigma_rt = ?", realtime.Sigma).
		Set("battles = battles + ?", battlesDelta).
		Set("wins = wins + ?", winsDelta).
		Set("ties = ties + ?", tiesDelta).
		Set("skips = skips + ?", skipsDelta).
		Set("updated_at = ?", time.Now().UTC()).
		Where("model_id = ?", modelID).
		Exec(ctx)
	return err
}

// RebaselineRealtime overwrites the real-time triple with the period triple
// for every given model (§4.D batch path: re-baseline at period boundary).
func (r *ModelRepository) RebaselineRealtime(ctx context.Context, modelID string, t domain.RatingTriple) error {
	idb := IDB(ctx, r.db)
	_, err := idb.NewUpdate().Model((*domain.Model)(nil)).
		Set("rating_mu = ?", t.Mu).
		Set("rating_phi = ?", t.Phi).
		Set("sigma = ?", t.Sigma).
		Set("mu_rt = ?", t.Mu).
		Set("phi_rt = ?", t.Phi).
		Set("sigma_rt = ?", t.Sigma).
		Set("updated_at = ?", time.Now().UTC()).
		Where("model_id = ?", modelID).
		Exec(ctx)
	return err
}

// BulkSetTier updates the tier column for a set of model ids in one statement
// (§4.E daily promotion/relegation).
func (r *ModelRepository) BulkSetTier(ctx context.Context, modelIDs []string, tier domain.Tier) error {
	if len(modelIDs) == 0 {
		return nil
	}
	idb := IDB(ctx, r.db)
	_, err := idb.NewUpdate().Model((*domain.Model)(nil)).
		Set("tier = ?", tier).
		Set("updated_at = ?", time.Now().UTC()).
		Where("model_id IN (?)", bun.In(modelIDs)).
		Exec(ctx)
	return err
}
