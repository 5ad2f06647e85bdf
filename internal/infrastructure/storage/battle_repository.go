package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/domain"
)

// BattleRepository persists domain.Battle rows.
type BattleRepository struct {
	db *bun.DB
}

// NewBattleRepository constructs a BattleRepository.
func NewBattleRepository(db *bun.DB) *BattleRepository {
	return &BattleRepository{db: db}
}

// Insert writes a new battle row.
func (r *BattleRepository) Insert(ctx context.Context, b *domain.Battle) error {
	_, err := IDB(ctx, r.db).NewInsert().Model(b).Exec(ctx)
	return err
}

// Get fetches a battle by id. Returns domain.ErrBattleNotFound when absent.
func (r *BattleRepository) Get(ctx context.Context, battleID string) (*domain.Battle, error) {
	b := new(domain.Battle)
	err := IDB(ctx, r.db).NewSelect().Model(b).Where("battle_id = ?", battleID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBattleNotFound
		}
		return nil, err
	}
	return b, nil
}

// UpdateModels rewrites the chosen model ids/names of a still-pending battle
// (§4.G step 3.c: subsequent matchmaking attempts update the row in place).
func (r *BattleRepository) UpdateModels(ctx context.Context, battleID, modelAID, modelAName, modelBID, modelBName string) error {
	_, err := IDB(ctx, r.db).NewUpdate().Model((*domain.Battle)(nil)).
		Set("model_a_id = ?", modelAID).
		Set("model_a_name = ?", modelAName).
		Set("model_b_id = ?", modelBID).
		Set("model_b_name = ?", modelBName).
		Where("battle_id = ?", battleID).
		Exec(ctx)
	return err
}

// FinalizeResponses transitions a battle to pending_vote with both responses
// filled in and a refreshed timestamp (§4.G step 3.f).
func (r *BattleRepository) FinalizeResponses(ctx context.Context, battleID, responseA, responseB string) error {
	_, err := IDB(ctx, r.db).NewUpdate().Model((*domain.Battle)(nil)).
		Set("response_a = ?", responseA).
		Set("response_b = ?", responseB).
		Set("status = ?", domain.BattleStatusPendingVote).
		Set("timestamp = ?", time.Now().UTC()).
		Where("battle_id = ?", battleID).
		Exec(ctx)
	return err
}

// Status returns only the status column, used by the final consistency
// check before finalizing (§4.G step 3.e, §9 "Cancellation via re-read").
func (r *BattleRepository) Status(ctx context.Context, battleID string) (domain.BattleStatus, error) {
	b := new(domain.Battle)
	err := IDB(ctx, r.db).NewSelect().Model(b).Column("status").Where("battle_id = ?", battleID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrBattleNotFound
		}
		return "", err
	}
	return b.Status, nil
}

// Complete transitions a battle to completed with the given winner (§4.H step 3).
func (r *BattleRepository) Complete(ctx context.Context, battleID string, winner domain.VoteChoice) error {
	_, err := IDB(ctx, r.db).NewUpdate().Model((*domain.Battle)(nil)).
		Set("status = ?", domain.BattleStatusCompleted).
		Set("winner = ?", winner).
		Where("battle_id = ?", battleID).
		Exec(ctx)
	return err
}

// SetRevealed idempotently flips the reveal flag.
func (r *BattleRepository) SetRevealed(ctx context.Context, battleID string) error {
	_, err := IDB(ctx, r.db).NewUpdate().Model((*domain.Battle)(nil)).
		Set("revealed = ?", true).
		Where("battle_id = ?", battleID).
		Exec(ctx)
	return err
}

// Delete removes a battle row.
func (r *BattleRepository) Delete(ctx context.Context, battleID string) error {
	_, err := IDB(ctx, r.db).NewDelete().Model((*domain.Battle)(nil)).Where("battle_id = ?", battleID).Exec(ctx)
	return err
}

// DeletePendingGenerationForCaller deletes every pending_generation battle
// for a caller and returns the count deleted (§4.G "Unstuck").
func (r *BattleRepository) DeletePendingGenerationForCaller(ctx context.Context, callerID string) (int, error) {
	res, err := IDB(ctx, r.db).NewDelete().Model((*domain.Battle)(nil)).
		Where("caller_id = ?", callerID).
		Where("status = ?", domain.BattleStatusPendingGeneration).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteStaleBefore deletes rows of the given status created before cutoff,
// returning the count deleted (§4.I janitor).
func (r *BattleRepository) DeleteStaleBefore(ctx context.Context, status domain.BattleStatus, cutoff time.Time) (int, error) {
	res, err := IDB(ctx, r.db).NewDelete().Model((*domain.Battle)(nil)).
		Where("status = ?", status).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PendingCountForCaller counts non-terminal battles for a caller (§4.G rate check a).
func (r *BattleRepository) PendingCountForCaller(ctx context.Context, callerID string) (int, error) {
	return IDB(ctx, r.db).NewSelect().Model((*domain.Battle)(nil)).
		Where("caller_id = ?", callerID).
		Where("status IN (?)", bun.In([]domain.BattleStatus{domain.BattleStatusPendingGeneration, domain.BattleStatusPendingVote})).
		Count(ctx)
}

// CreatedCountSince counts battles created by a caller since cutoff (§4.G rate check b).
func (r *BattleRepository) CreatedCountSince(ctx context.Context, callerID string, cutoff time.Time) (int, error) {
	return IDB(ctx, r.db).NewSelect().Model((*domain.Battle)(nil)).
		Where("caller_id = ?", callerID).
		Where("created_at >= ?", cutoff).
		Count(ctx)
}

// LatestForCaller returns the caller's most recently created battle, or
// domain.ErrBattleNotFound if they have none (§4.G rate check c, /battleback).
func (r *BattleRepository) LatestForCaller(ctx context.Context, callerID string) (*domain.Battle, error) {
	b := new(domain.Battle)
	err := IDB(ctx, r.db).NewSelect().Model(b).
		Where("caller_id = ?", callerID).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBattleNotFound
		}
		return nil, err
	}
	return b, nil
}

// CompletedCount returns the total number of completed battles (§6 /health).
func (r *BattleRepository) CompletedCount(ctx context.Context) (int, error) {
	return IDB(ctx, r.db).NewSelect().Model((*domain.Battle)(nil)).
		Where("status = ?", domain.BattleStatusCompleted).
		Count(ctx)
}

// DistinctCallerCount returns the number of distinct callers observed (§6 /health recorded_users_count).
func (r *BattleRepository) DistinctCallerCount(ctx context.Context) (int, error) {
	return IDB(ctx, r.db).NewSelect().Model((*domain.Battle)(nil)).
		Column("caller_id").
		Group("caller_id").
		Count(ctx)
}

// PerModelStats aggregates battles/wins/ties/skips keyed by model name for
// /api/battle_statistics (§6). Counts both sides of every completed battle.
type ModelStat struct {
	ModelName string
	Battles   int
	Wins      int
	Ties      int
	Skips     int
}

func (r *BattleRepository) PerModelStats(ctx context.Context) (map[string]*ModelStat, error) {
	var rows []*domain.Battle
	if err := IDB(ctx, r.db).NewSelect().Model(&rows).Where("status = ?", domain.BattleStatusCompleted).Scan(ctx); err != nil {
		return nil, err
	}

	stats := map[string]*ModelStat{}
	touch := func(name string) *ModelStat {
		s, ok := stats[name]
		if !ok {
			s = &ModelStat{ModelName: name}
			stats[name] = s
		}
		return s
	}

	for _, b := range rows {
		a := touch(b.ModelAName)
		bb := touch(b.ModelBName)
		a.Battles++
		bb.Battles++
		if b.Winner == nil {
			continue
		}
		switch *b.Winner {
		case domain.VoteModelA:
			a.Wins++
		case domain.VoteModelB:
			bb.Wins++
		case domain.VoteTie:
			a.Ties++
			bb.Ties++
		case domain.VoteSkip:
			a.Skips++
			bb.Skips++
		}
	}
	return stats, nil
}

// PromptStat aggregates per-prompt-id battle counts for /api/prompt_statistics (§6).
type PromptStat struct {
	PromptID      string
	PromptTheme   string
	Battles       int
	CompletedCount int
}

func (r *BattleRepository) PerPromptStats(ctx context.Context) (map[string]*PromptStat, error) {
	var rows []*domain.Battle
	if err := IDB(ctx, r.db).NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, err
	}
	stats := map[string]*PromptStat{}
	for _, b := range rows {
		s, ok := stats[b.PromptID]
		if !ok {
			s = &PromptStat{PromptID: b.PromptID, PromptTheme: b.PromptTheme}
			stats[b.PromptID] = s
		}
		s.Battles++
		if b.Status == domain.BattleStatusCompleted {
			s.CompletedCount++
		}
	}
	return stats, nil
}
