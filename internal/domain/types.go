// Package domain holds the persistent entities and enums shared across the
// matchmaking, rating, battle and vote subsystems.
package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Tier classifies a model's matchmaking pool.
type Tier string

const (
	TierHigh Tier = "high"
	TierLow  Tier = "low"
)

// BattleType is the tier a caller requested a battle from.
type BattleType string

const (
	BattleTypeHighTier BattleType = "high_tier"
	BattleTypeLowTier  BattleType = "low_tier"
)

// BattleStatus is the lifecycle state of a Battle row.
type BattleStatus string

const (
	BattleStatusPendingGeneration BattleStatus = "pending_generation"
	BattleStatusPendingVote       BattleStatus = "pending_vote"
	BattleStatusCompleted         BattleStatus = "completed"
)

// VoteChoice is the outcome a caller reports for a battle.
type VoteChoice string

const (
	VoteModelA VoteChoice = "model_a"
	VoteModelB VoteChoice = "model_b"
	VoteTie    VoteChoice = "tie"
	VoteSkip   VoteChoice = "skip"
)

// Model is a rated participant. It carries two parallel rating triples: the
// authoritative period triple and a real-time triple that is re-baselined to
// the period triple at every period boundary.
type Model struct {
	bun.BaseModel `bun:"table:models,alias:m"`

	ModelID  string `bun:"model_id,pk"`
	Name     string `bun:"name,notnull"`
	Tier     Tier   `bun:"tier,notnull"`
	IsActive bool   `bun:"is_active,notnull"`
	Weight   float64 `bun:"weight,notnull,default:1.0"`

	RatingMu  float64 `bun:"rating_mu,notnull"`
	RatingPhi float64 `bun:"rating_phi,notnull"`
	Sigma     float64 `bun:"sigma,notnull"`

	MuRT    float64 `bun:"mu_rt,notnull"`
	PhiRT   float64 `bun:"phi_rt,notnull"`
	SigmaRT float64 `bun:"sigma_rt,notnull"`

	Battles int `bun:"battles,notnull"`
	Wins    int `bun:"wins,notnull"`
	Ties    int `bun:"ties,notnull"`
	Skips   int `bun:"skips,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// RatingTriple is a (mu, phi, sigma) Glicko-2 state snapshot.
type RatingTriple struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// Period returns the model's authoritative rating triple.
func (m *Model) Period() RatingTriple {
	return RatingTriple{Mu: m.RatingMu, Phi: m.RatingPhi, Sigma: m.Sigma}
}

// RealTime returns the model's continuously-updating rating triple.
func (m *Model) RealTime() RatingTriple {
	return RatingTriple{Mu: m.MuRT, Phi: m.PhiRT, Sigma: m.SigmaRT}
}

// Battle is one pair of anonymized responses to a prompt awaiting a vote.
type Battle struct {
	bun.BaseModel `bun:"table:battles,alias:b"`

	BattleID     string       `bun:"battle_id,pk"`
	BattleType   BattleType   `bun:"battle_type,notnull"`
	PromptID     string       `bun:"prompt_id,notnull"`
	PromptTheme  string       `bun:"prompt_theme,notnull"`
	Prompt       string       `bun:"prompt,notnull"`
	ModelAID     string       `bun:"model_a_id,notnull"`
	ModelAName   string       `bun:"model_a_name,notnull"`
	ModelBID     string       `bun:"model_b_id,notnull"`
	ModelBName   string       `bun:"model_b_name,notnull"`
	ResponseA    string       `bun:"response_a"`
	ResponseB    string       `bun:"response_b"`
	Status       BattleStatus `bun:"status,notnull"`
	Winner       *VoteChoice  `bun:"winner"`
	CallerID     string       `bun:"caller_id,notnull"`
	Revealed     bool         `bun:"revealed,notnull"`
	Timestamp    time.Time    `bun:"timestamp,notnull"`
	CreatedAt    time.Time    `bun:"created_at,notnull"`
}

// VoteRecord is an immutable append-only audit row for one cast vote.
type VoteRecord struct {
	bun.BaseModel `bun:"table:voting_history,alias:vh"`

	ID        int64      `bun:"id,pk,autoincrement"`
	Timestamp time.Time  `bun:"timestamp,notnull"`
	BattleID  string     `bun:"battle_id,notnull"`
	Choice    VoteChoice `bun:"choice,notnull"`
	CallerID  string     `bun:"caller_id,notnull"`
	CallerHash string    `bun:"caller_hash,notnull"`
}

// PendingMatch is a deferred rating-update row, drained by the periodic
// batch job. Score is A's score against B: 1.0, 0.5 or 0.0.
type PendingMatch struct {
	bun.BaseModel `bun:"table:pending_matches,alias:pm"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ModelAID  string    `bun:"model_a_id,notnull"`
	ModelBID  string    `bun:"model_b_id,notnull"`
	Score     float64   `bun:"score,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// Session backs stateful multi-turn character-selection flows.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	SessionID          string    `bun:"session_id,pk"`
	CallerID           string    `bun:"caller_id,notnull"`
	ModelAID           string    `bun:"model_a_id"`
	ModelBID           string    `bun:"model_b_id"`
	ConfigAID          string    `bun:"config_a_id"`
	ConfigBID          string    `bun:"config_b_id"`
	UserViewJSON       string    `bun:"user_view_json"`
	AssistantViewJSON  string    `bun:"assistant_view_json"`
	SelectedCharacterMessageIndex int `bun:"selected_character_message_index"`
	GeneratedOptionsJSON string  `bun:"generated_options_json"`
	TurnCount          int       `bun:"turn_count,notnull"`
	CreatedAt          time.Time `bun:"created_at,notnull"`
	UpdatedAt          time.Time `bun:"updated_at,notnull"`
}
