// Package tiermanager assigns and periodically rebalances the high/low tier
// classification used by matchmaking (§4.E).
package tiermanager

import (
	"context"
	"fmt"
	"sort"

	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// Manager owns tier bisection and daily promotion/relegation.
type Manager struct {
	models *storage.ModelRepository
	log    *logger.Logger
	promotionRelegationCount int
}

// NewManager constructs a tier Manager.
func NewManager(models *storage.ModelRepository, log *logger.Logger, promotionRelegationCount int) *Manager {
	return &Manager{models: models, log: log, promotionRelegationCount: promotionRelegationCount}
}

// InitializeModelTiers performs the startup bisection: if more than half of
// active models lack a tier assignment or no model is high, sort by rating
// desc and assign the top ceil(N/2) to high, the rest to low.
func (m *Manager) InitializeModelTiers(ctx context.Context) error {
	all, err := m.models.All(ctx)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	var active []*domain.Model
	hasHigh := false
	unassigned := 0
	for _, model := range all {
		if !model.IsActive {
			continue
		}
		active = append(active, model)
		if model.Tier == domain.TierHigh {
			hasHigh = true
		}
		if model.Tier == "" {
			unassigned++
		}
	}

	if len(active) == 0 {
		return nil
	}
	if hasHigh && unassigned*2 <= len(active) {
		return nil
	}

	sort.Slice(active, func(i, j int) bool { return active[i].RatingMu > active[j].RatingMu })

	highCount := (len(active) + 1) / 2
	var highIDs, lowIDs []string
	for i, model := range active {
		if i < highCount {
			highIDs = append(highIDs, model.ModelID)
		} else {
			lowIDs = append(lowIDs, model.ModelID)
		}
	}

	if err := m.models.BulkSetTier(ctx, highIDs, domain.TierHigh); err != nil {
		return err
	}
	if err := m.models.BulkSetTier(ctx, lowIDs, domain.TierLow); err != nil {
		return err
	}

	m.log.Info("initialized model tiers", "high", len(highIDs), "low", len(lowIDs))
	return nil
}

// PromoteAndRelegate swaps the K lowest-rated high-tier models with the K
// highest-rated low-tier models (§4.E daily job). Idempotent when no
// ratings have changed since the last run.
func (m *Manager) PromoteAndRelegate(ctx context.Context) error {
	high, low, err := m.models.ActiveByTier(ctx)
	if err != nil {
		return fmt.Errorf("load tiers: %w", err)
	}

	k := m.promotionRelegationCount
	if k <= 0 || len(high) == 0 || len(low) == 0 {
		return nil
	}

	// high is sorted rating desc; the lowest-rated are at the tail.
	relegateCount := min(k, len(high))
	relegate := high[len(high)-relegateCount:]

	// low is sorted rating desc; the highest-rated are at the head.
	promoteCount := min(k, len(low))
	promote := low[:promoteCount]

	var relegateIDs, promoteIDs []string
	for _, mm := range relegate {
		relegateIDs = append(relegateIDs, mm.ModelID)
	}
	for _, mm := range promote {
		promoteIDs = append(promoteIDs, mm.ModelID)
	}

	if err := m.models.BulkSetTier(ctx, relegateIDs, domain.TierLow); err != nil {
		return err
	}
	if err := m.models.BulkSetTier(ctx, promoteIDs, domain.TierHigh); err != nil {
		return err
	}

	m.log.Info("ran promotion/relegation", "promoted", promoteIDs, "relegated", relegateIDs)
	return nil
}
