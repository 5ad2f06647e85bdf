package rest

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/ratingarena/server/internal/domain"
)

type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: httpStatus,
	}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrNotFound         = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrConflict         = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrValidationFailed = NewAPIError("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrTooManyRequests  = NewAPIError("RATE_LIMIT_EXCEEDED", "Too many requests", http.StatusTooManyRequests)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrInvalidParameter = NewAPIError("INVALID_PARAMETER", "Invalid parameter value", http.StatusBadRequest)
)

// TranslateError maps a domain/store error to an HTTP-shaped APIError,
// following the uniform mapping in §4.J: validation→400, not-found→404,
// rate-limit→429, conflict→400, internal→500.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rateLimitErr *domain.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return NewAPIErrorWithDetails("RATE_LIMIT_EXCEEDED", rateLimitErr.Error(), http.StatusTooManyRequests, map[string]interface{}{
			"available_at": rateLimitErr.AvailableAt,
		})
	}

	var modelCallErr *domain.ModelCallError
	if errors.As(err, &modelCallErr) {
		return NewAPIError("MODEL_CALL_FAILED", classifyModelCallError(modelCallErr.Err), http.StatusBadGateway)
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return NewAPIErrorWithDetails("VALIDATION_FAILED", validationErr.Message, http.StatusBadRequest, map[string]interface{}{
			"field": validationErr.Field,
		})
	}

	var validationErrs domain.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		details := make(map[string]interface{}, len(validationErrs))
		for _, ve := range validationErrs {
			details[ve.Field] = ve.Message
		}
		return NewAPIErrorWithDetails("VALIDATION_FAILED", validationErrs[0].Message, http.StatusBadRequest, details)
	}

	switch {
	case errors.Is(err, domain.ErrBattleNotFound):
		return NewAPIError("BATTLE_NOT_FOUND", "Battle not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrSessionNotFound):
		return NewAPIError("SESSION_NOT_FOUND", "Session not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrModelNotFound):
		return NewAPIError("MODEL_NOT_FOUND", "Model not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidVoteChoice):
		return NewAPIError("INVALID_VOTE_CHOICE", "Invalid vote choice", http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidBattleType):
		return NewAPIError("INVALID_BATTLE_TYPE", "Invalid battle type", http.StatusBadRequest)
	case errors.Is(err, domain.ErrInsufficientModels):
		return NewAPIError("INSUFFICIENT_MODELS", "Not enough active models to create a battle", http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrVoteConflict):
		return NewAPIError("VOTE_CONFLICT", "Battle is not awaiting a vote", http.StatusBadRequest)
	case errors.Is(err, domain.ErrDuplicateVote):
		return NewAPIError("DUPLICATE_VOTE", "Caller already voted on this battle", http.StatusBadRequest)
	case errors.Is(err, domain.ErrBattleCancelled):
		return NewAPIError("BATTLE_CANCELLED", "Battle was cancelled before it could be finalized", http.StatusConflict)
	case errors.Is(err, domain.ErrValidationFailed):
		return NewAPIError("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	case errors.Is(err, sql.ErrNoRows):
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "no rows") || strings.Contains(errMsg, "not found") {
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}

// classifyModelCallError turns the last underlying transport error into the
// short human-readable causes named in §4.G step 4.
func classifyModelCallError(err error) string {
	if err == nil {
		return "model call failed"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context canceled"):
		return "model response timed out"
	case strings.Contains(msg, "404"):
		return "cannot find the model API"
	case strings.Contains(msg, "503"):
		return "model service temporarily unavailable"
	default:
		return "creation failed"
	}
}
