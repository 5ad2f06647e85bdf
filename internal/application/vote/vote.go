// Package vote implements anti-cheat checked vote casting and the rating
// dispatch it triggers (§4.H).
package vote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/application/rating"
	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// Result is what Cast returns on success: the winner label plus the
// (possibly still-anonymous-to-the-caller) model names for the UI.
type Result struct {
	Winner     domain.VoteChoice
	ModelAName string
	ModelBName string
}

// Controller casts votes and dispatches their rating update.
type Controller struct {
	db      *bun.DB
	battles *storage.BattleRepository
	votes   *storage.VoteRepository
	pending *storage.PendingMatchRepository
	engine  *rating.Engine
	cfg     config.AntiCheatConfig
	period  config.RatingConfig
}

// NewController constructs a vote Controller.
func NewController(
	db *bun.DB,
	battles *storage.BattleRepository,
	votes *storage.VoteRepository,
	pending *storage.PendingMatchRepository,
	engine *rating.Engine,
	cfg config.AntiCheatConfig,
	period config.RatingConfig,
) *Controller {
	return &Controller{db: db, battles: battles, votes: votes, pending: pending, engine: engine, cfg: cfg, period: period}
}

func hashCaller(callerID, salt string) string {
	sum := sha256.Sum256([]byte(salt + callerID))
	return hex.EncodeToString(sum[:])
}

// scoreFor is the pending_match score recorded for A against B (§4.D table).
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

// Cast validates and records a vote for battleID, then dispatches the
// rating update (§4.H). callerID is hashed before any persistence or
// anti-cheat comparison.
func (c *Controller) Cast(ctx context.Context, battleID string, choice domain.VoteChoice, callerID string) (*Result, error) {
	callerHash := hashCaller(callerID, c.cfg.VoteHashSalt)

	window := c.cfg.VoteTimeWindow
	if c.cfg.UserRateLimitWindow > window {
		window = c.cfg.UserRateLimitWindow
	}
	recent, err := c.votes.RecentByHash(ctx, callerHash, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("load recent votes: %w", err)
	}

	voteCutoff := time.Now().UTC().Add(-c.cfg.VoteTimeWindow)
	rateCutoff := time.Now().UTC().Add(-c.cfg.UserRateLimitWindow)
	rateCount := 0
	for _, v := range recent {
		if v.BattleID == battleID && !v.Timestamp.Before(voteCutoff) {
			return nil, domain.ErrDuplicateVote
		}
		if !v.Timestamp.Before(rateCutoff) {
			rateCount++
		}
	}
	if c.cfg.UserMaxVotesPerHour > 0 && rateCount >= c.cfg.UserMaxVotesPerHour {
		// recent is newest first, so the in-window votes are its prefix; a
		// slot frees up when the limit-th newest of them leaves the window.
		return nil, &domain.RateLimitError{
			Reason:      "hourly vote limit reached",
			AvailableAt: recent[c.cfg.UserMaxVotesPerHour-1].Timestamp.Add(c.cfg.UserRateLimitWindow),
		}
	}

	var result *Result
	err = storage.WithTransaction(ctx, c.db, func(ctx context.Context, tx bun.IDB) error {
		b, err := c.battles.Get(ctx, battleID)
		if err != nil {
			return err
		}
		if b.Status != domain.BattleStatusPendingVote {
			return domain.ErrVoteConflict
		}

		isRealtime := c.period.UpdatePeriodMinutes > 0
		if err := c.engine.ProcessBattleResult(ctx, b.ModelAID, b.ModelBID, choice, isRealtime); err != nil {
			return fmt.Errorf("process rating: %w", err)
		}
		if isRealtime && choice != domain.VoteSkip {
			if err := c.pending.Append(ctx, &domain.PendingMatch{
				ModelAID:  b.ModelAID,
				ModelBID:  b.ModelBID,
				Score:     scoreFor(choice),
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("append pending match: %w", err)
			}
		}

		if err := c.battles.Complete(ctx, battleID, choice); err != nil {
			return fmt.Errorf("complete battle: %w", err)
		}

		if err := c.votes.Insert(ctx, &domain.VoteRecord{
			Timestamp:  time.Now().UTC(),
			BattleID:   battleID,
			Choice:     choice,
			CallerID:   callerID,
			CallerHash: callerHash,
		}); err != nil {
			return fmt.Errorf("insert vote record: %w", err)
		}

		result = &Result{Winner: choice, ModelAName: b.ModelAName, ModelBName: b.ModelBName}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
