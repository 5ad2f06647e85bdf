package domain

import (
	"errors"
	"time"
)

// Sentinel domain errors. These are checked with errors.Is/errors.As by the
// HTTP error translator; they carry no HTTP-specific knowledge themselves.
var (
	ErrBattleNotFound      = errors.New("battle not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrModelNotFound       = errors.New("model not found")
	ErrInvalidVoteChoice   = errors.New("invalid vote choice")
	ErrInvalidBattleType   = errors.New("invalid battle type")
	ErrInsufficientModels  = errors.New("insufficient active models for matchmaking")
	ErrModelCallFailed     = errors.New("model call failed")
	ErrVoteConflict        = errors.New("battle is not awaiting a vote")
	ErrDuplicateVote       = errors.New("caller already voted on this battle")
	ErrBattleCancelled     = errors.New("battle was cancelled before it could be finalized")
	ErrValidationFailed    = errors.New("validation failed")
)

// RateLimitError is raised when a caller exceeds a configured battle-creation
// or vote limit. AvailableAt is the earliest instant at which the caller may retry.
type RateLimitError struct {
	Reason      string
	AvailableAt time.Time
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Reason
}

// ModelCallError wraps the last underlying transport/HTTP error after every
// configured channel and key has been exhausted for a model call.
type ModelCallError struct {
	ModelID string
	Err     error
}

func (e *ModelCallError) Error() string {
	return "model " + e.ModelID + " call failed: " + e.Err.Error()
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// ValidationError represents one field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is a batch of field-level validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}
