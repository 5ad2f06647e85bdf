// Package rating wraps pkg/glicko2 with the per-match and periodic-batch
// update paths described in §4.D, plus leaderboard projection.
package rating

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/storage"
	"github.com/ratingarena/server/pkg/glicko2"
)

// Engine is the rating service: per-match updates plus the periodic batch job.
type Engine struct {
	db       *bun.DB
	models   *storage.ModelRepository
	pending  *storage.PendingMatchRepository
	cfg      config.RatingConfig
}

// NewEngine constructs a rating Engine.
func NewEngine(db *bun.DB, models *storage.ModelRepository, pending *storage.PendingMatchRepository, cfg config.RatingConfig) *Engine {
	return &Engine{db: db, models: models, pending: pending, cfg: cfg}
}

// scoreFor maps a vote choice to A's score against B, per the §4.D table.
// skip never reaches here — callers must special-case it (counters only).
func scoreFor(winner domain.VoteChoice) float64 {
	switch winner {
	case domain.VoteModelA:
		return 1.0
	case domain.VoteModelB:
		return 0.0
	case domain.VoteTie:
		return 0.5
	default:
		return 0.5
	}
}

// ProcessBattleResult applies the Glicko-2 one-vs-one update to both
// participants for a single battle outcome (§4.D "Per-match path").
//
// When isRealtime is true, only the real-time triple is written, and the
// counters (battles/wins/ties) update as well, since the period job that
// later rewrites the period triple does not touch them.
// When isRealtime is false, the period triple is written AND counters
// (battles/wins/ties) update — this is also the path used outright when
// the rating period is disabled (real-time-only deployments).
func (e *Engine) ProcessBattleResult(ctx context.Context, modelAID, modelBID string, winner domain.VoteChoice, isRealtime bool) error {
	a, err := e.models.Get(ctx, modelAID)
	if err != nil {
		return fmt.Errorf("load model %s: %w", modelAID, err)
	}
	b, err := e.models.Get(ctx, modelBID)
	if err != nil {
		return fmt.Errorf("load model %s: %w", modelBID, err)
	}

	if winner == domain.VoteSkip {
		return e.applySkip(ctx, a, b, isRealtime)
	}

	var aTriple, bTriple domain.RatingTriple
	if isRealtime {
		aTriple, bTriple = a.RealTime(), b.RealTime()
	} else {
		aTriple, bTriple = a.Period(), b.Period()
	}

	aRating := glicko2.Rating{Mu: aTriple.Mu, Phi: aTriple.Phi, Sigma: aTriple.Sigma}
	bRating := glicko2.Rating{Mu: bTriple.Mu, Phi: bTriple.Phi, Sigma: bTriple.Sigma}

	scoreA := scoreFor(winner)
	newA := glicko2.Update(e.cfg.Tau, aRating, []glicko2.Result{{Opponent: bRating, Score: scoreA}})
	newB := glicko2.Update(e.cfg.Tau, bRating, []glicko2.Result{{Opponent: aRating, Score: 1 - scoreA}})

	aWinDelta, bWinDelta, tieDelta := 0, 0, 0
	switch winner {
	case domain.VoteModelA:
		aWinDelta = 1
	case domain.VoteModelB:
		bWinDelta = 1
	case domain.VoteTie:
		tieDelta = 1
	}

	newATriple := domain.RatingTriple{Mu: newA.Mu, Phi: newA.Phi, Sigma: newA.Sigma}
	newBTriple := domain.RatingTriple{Mu: newB.Mu, Phi: newB.Phi, Sigma: newB.Sigma}

	if isRealtime {
		if err := e.models.UpdateRealtimeOnly(ctx, modelAID, newATriple, 1, aWinDelta, tieDelta, 0); err != nil {
			return err
		}
		return e.models.UpdateRealtimeOnly(ctx, modelBID, newBTriple, 1, bWinDelta, tieDelta, 0)
	}

	if err := e.models.UpdateRatings(ctx, modelAID, newATriple, a.RealTime(), 1, aWinDelta, tieDelta, 0); err != nil {
		return err
	}
	return e.models.UpdateRatings(ctx, modelBID, newBTriple, b.RealTime(), 1, bWinDelta, tieDelta, 0)
}

// applySkip increments skip counters on both models without touching any
// rating triple, on whichever path is active (§9 open-question decision).
func (e *Engine) applySkip(ctx context.Context, a, b *domain.Model, isRealtime bool) error {
	if isRealtime {
		if err := e.models.UpdateRealtimeOnly(ctx, a.ModelID, a.RealTime(), 1, 0, 0, 1); err != nil {
			return err
		}
		return e.models.UpdateRealtimeOnly(ctx, b.ModelID, b.RealTime(), 1, 0, 0, 1)
	}
	if err := e.models.UpdateRatings(ctx, a.ModelID, a.Period(), a.RealTime(), 1, 0, 0, 1); err != nil {
		return err
	}
	return e.models.UpdateRatings(ctx, b.ModelID, b.Period(), b.RealTime(), 1, 0, 0, 1)
}

// RunRatingUpdate drains pending_matches and applies the full Glicko-2
// batch update per participating model, using each opponent's pre-period
// rating snapshot (§4.D "Period/batch path").
func (e *Engine) RunRatingUpdate(ctx context.Context) error {
	matches, err := e.pending.DrainAll(ctx, e.db)
	if err != nil {
		return fmt.Errorf("drain pending matches: %w", err)
	}
	if len(matches) == 0 {
		return nil
	}

	allModels, err := e.models.All(ctx)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	// Snapshot pre-period ratings before any model in this batch is updated.
	preRating := make(map[string]glicko2.Rating, len(allModels))
	for id, m := range allModels {
		preRating[id] = glicko2.Rating{Mu: m.RatingMu, Phi: m.RatingPhi, Sigma: m.Sigma}
	}

	series := map[string][]glicko2.Result{}
	for _, pm := range matches {
		aRating, aok := preRating[pm.ModelAID]
		bRating, bok := preRating[pm.ModelBID]
		if !aok || !bok {
			continue
		}
		series[pm.ModelAID] = append(series[pm.ModelAID], glicko2.Result{Opponent: bRating, Score: pm.Score})
		series[pm.ModelBID] = append(series[pm.ModelBID], glicko2.Result{Opponent: aRating, Score: 1 - pm.Score})
	}

	for modelID, results := range series {
		subject, ok := preRating[modelID]
		if !ok {
			continue
		}
		newRating := glicko2.Update(e.cfg.Tau, subject, results)
		triple := domain.RatingTriple{Mu: newRating.Mu, Phi: newRating.Phi, Sigma: newRating.Sigma}
		// Re-baseline the real-time triple to the new period triple.
		if err := e.models.RebaselineRealtime(ctx, modelID, triple); err != nil {
			return fmt.Errorf("rebaseline %s: %w", modelID, err)
		}
	}

	return nil
}

// LeaderboardEntry is one row of the projected leaderboard (§4.D, §6).
type LeaderboardEntry struct {
	Rank                   int
	ModelID                string
	ModelName              string
	Tier                   domain.Tier
	Rating                 float64
	RatingDeviation        float64
	Volatility             float64
	Battles                int
	Wins                   int
	Ties                   int
	Skips                  int
	WinRatePercentage      float64
	RatingRealtime         float64
	RatingDeviationRealtime float64
	VolatilityRealtime     float64
}

// GenerateLeaderboard filters inactive models, derives win rate over an
// effective-battles denominator, sorts by rounded period rating desc, and
// assigns contiguous ranks starting at 1 (§4.D, §8 invariant 7).
func GenerateLeaderboard(models map[string]*domain.Model) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(models))
	for _, m := range models {
		if !m.IsActive {
			continue
		}
		effective := m.Battles - m.Ties - m.Skips
		winRate := 0.0
		if effective > 0 {
			winRate = (float64(m.Wins) + 0.5*float64(m.Ties)) / float64(effective) * 100
		}
		entries = append(entries, LeaderboardEntry{
			ModelID:                 m.ModelID,
			ModelName:               m.Name,
			Tier:                    m.Tier,
			Rating:                  m.RatingMu,
			RatingDeviation:         m.RatingPhi,
			Volatility:              m.Sigma,
			Battles:                 m.Battles,
			Wins:                    m.Wins,
			Ties:                    m.Ties,
			Skips:                   m.Skips,
			WinRatePercentage:       winRate,
			RatingRealtime:          m.MuRT,
			RatingDeviationRealtime: m.PhiRT,
			VolatilityRealtime:      m.SigmaRT,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		ri := round2(entries[i].Rating)
		rj := round2(entries[j].Rating)
		if ri != rj {
			return ri > rj
		}
		return entries[i].ModelID < entries[j].ModelID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
