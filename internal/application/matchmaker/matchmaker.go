// Package matchmaker selects two models for a battle under the tier,
// transition-zone, and cross-tier probability mix described in §4.F.
package matchmaker

import (
	"context"
	"math/rand"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

const maxSampleAttempts = 20

// Matchmaker selects a pair of distinct model ids for a requested tier.
type Matchmaker struct {
	models   *storage.ModelRepository
	registry *config.Registry
	cfg      config.MatchmakingConfig
}

// NewMatchmaker constructs a Matchmaker.
func NewMatchmaker(models *storage.ModelRepository, registry *config.Registry, cfg config.MatchmakingConfig) *Matchmaker {
	return &Matchmaker{models: models, registry: registry, cfg: cfg}
}

// Selection is the pair chosen by Select.
type Selection struct {
	ModelAID, ModelAName string
	ModelBID, ModelBName string
}

// Select draws two distinct models for battleType, excluding any id in
// exclude, and filtering out preset models whose answer pack lacks promptID
// (§4.F). It is side-effect free: only the RNG seed determines the outcome.
func (mm *Matchmaker) Select(ctx context.Context, battleType domain.BattleType, promptID string, exclude map[string]bool) (*Selection, error) {
	high, low, err := mm.models.ActiveByTier(ctx)
	if err != nil {
		return nil, err
	}

	presetIDs := mm.registry.PresetModelIDs()
	filterPreset := func(list []*domain.Model) []*domain.Model {
		out := make([]*domain.Model, 0, len(list))
		for _, m := range list {
			if presetIDs[m.ModelID] {
				answers, err := mm.registry.PresetAnswers(m.ModelID, promptID)
				if err != nil || len(answers) == 0 {
					continue
				}
			}
			out = append(out, m)
		}
		return out
	}
	high = filterPreset(high)
	low = filterPreset(low)

	filterExcluded := func(list []*domain.Model) []*domain.Model {
		out := make([]*domain.Model, 0, len(list))
		for _, m := range list {
			if !exclude[m.ModelID] {
				out = append(out, m)
			}
		}
		return out
	}
	high = filterExcluded(high)
	low = filterExcluded(low)

	all := append(append([]*domain.Model{}, high...), low...)

	var basePool []*domain.Model
	if battleType == domain.BattleTypeHighTier {
		basePool = high
	} else {
		basePool = low
	}

	var opponentPool []*domain.Model

	r := rand.Float64()
	switch {
	case r < mm.cfg.GlobalRandomMatchProbability:
		opponentPool = all
	case r < mm.cfg.GlobalRandomMatchProbability+mm.cfg.TransitionZoneProbability:
		zone := transitionZone(high, low, mm.cfg.TransitionZoneSize)
		restricted := intersect(basePool, zone)
		if len(restricted) > 0 {
			basePool = restricted
			opponentPool = zone
		} else {
			opponentPool = basePool
		}
	default:
		opponentPool = basePool
	}

	if len(basePool) == 0 || len(opponentPool) == 0 {
		basePool = all
		opponentPool = all
	}
	if len(all) < 2 {
		return nil, domain.ErrInsufficientModels
	}

	a, b := sampleWithRetry(basePool, opponentPool)
	if a == nil || b == nil {
		a, b = sampleUniqueFromUnion(all)
	}
	if a == nil || b == nil {
		return nil, domain.ErrInsufficientModels
	}

	return &Selection{
		ModelAID: a.ModelID, ModelAName: a.Name,
		ModelBID: b.ModelID, ModelBName: b.Name,
	}, nil
}

// transitionZone returns the last S of high (lowest-rated high models,
// since high is sorted desc) union the first S of low (highest-rated low
// models).
func transitionZone(high, low []*domain.Model, size int) []*domain.Model {
	var zone []*domain.Model
	if size > len(high) {
		size = len(high)
	}
	zone = append(zone, high[len(high)-size:]...)

	lowSize := size
	if lowSize > len(low) {
		lowSize = len(low)
	}
	zone = append(zone, low[:lowSize]...)
	return zone
}

func intersect(a, b []*domain.Model) []*domain.Model {
	set := make(map[string]bool, len(b))
	for _, m := range b {
		set[m.ModelID] = true
	}
	var out []*domain.Model
	for _, m := range a {
		if set[m.ModelID] {
			out = append(out, m)
		}
	}
	return out
}

func weightedPick(pool []*domain.Model) *domain.Model {
	if len(pool) == 0 {
		return nil
	}
	total := 0.0
	for _, m := range pool {
		w := m.Weight
		if w <= 0 {
			w = 1.0
		}
		total += w
	}
	r := rand.Float64() * total
	acc := 0.0
	for _, m := range pool {
		w := m.Weight
		if w <= 0 {
			w = 1.0
		}
		acc += w
		if r <= acc {
			return m
		}
	}
	return pool[len(pool)-1]
}

// sampleWithRetry draws with replacement up to maxSampleAttempts times until
// the two picks differ by id (§4.F step 6, §9 "Weighted sampling with retry").
func sampleWithRetry(basePool, opponentPool []*domain.Model) (*domain.Model, *domain.Model) {
	if len(basePool) == 0 || len(opponentPool) == 0 {
		return nil, nil
	}
	for i := 0; i < maxSampleAttempts; i++ {
		a := weightedPick(basePool)
		b := weightedPick(opponentPool)
		if a != nil && b != nil && a.ModelID != b.ModelID {
			return a, b
		}
	}
	return nil, nil
}

// sampleUniqueFromUnion deduplicates the given list and samples two
// uniformly without replacement, the fallback when weighted retry is
// exhausted.
func sampleUniqueFromUnion(models []*domain.Model) (*domain.Model, *domain.Model) {
	seen := map[string]bool{}
	var unique []*domain.Model
	for _, m := range models {
		if !seen[m.ModelID] {
			seen[m.ModelID] = true
			unique = append(unique, m)
		}
	}
	if len(unique) < 2 {
		return nil, nil
	}
	perm := rand.Perm(len(unique))
	return unique[perm[0]], unique[perm[1]]
}
