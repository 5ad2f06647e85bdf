package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ratingarena/server/internal/application/optiongen"
	"github.com/ratingarena/server/internal/application/promptengine"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// SessionHandlers serves /sessions/latest, /character_selection and
// /generate_options.
type SessionHandlers struct {
	sessions *storage.SessionRepository
	engine   promptengine.Engine
	options  *optiongen.Generator
	logger   *logger.Logger
}

// NewSessionHandlers constructs SessionHandlers.
func NewSessionHandlers(sessions *storage.SessionRepository, engine promptengine.Engine, options *optiongen.Generator, log *logger.Logger) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, engine: engine, options: options, logger: log}
}

// HandleLatestSession serves POST /sessions/latest (§6).
func (h *SessionHandlers) HandleLatestSession(c *gin.Context) {
	var req struct {
		DiscordID string `json:"discord_id"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	s, err := h.sessions.LatestForCaller(c.Request.Context(), req.DiscordID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": s.SessionID, "turn_count": s.TurnCount})
}

type characterSelectionRequest struct {
	SessionID                    string `json:"session_id" binding:"required"`
	SelectedCharacterMessageIndex int   `json:"selected_character_message_index"`
}

// HandleCharacterSelection serves POST /character_selection (§6): records
// the caller's chosen opening message and advances the session's turn.
func (h *SessionHandlers) HandleCharacterSelection(c *gin.Context) {
	var req characterSelectionRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	ctx := c.Request.Context()
	s, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	_, messages, err := h.engine.InitialMessages(ctx, req.SessionID)
	if err != nil {
		h.logger.Error("character selection: prompt engine failed", "error", err, "session_id", req.SessionID)
		respondAPIErrorWithRequestID(c, err)
		return
	}
	if req.SelectedCharacterMessageIndex < 0 || req.SelectedCharacterMessageIndex >= len(messages) {
		respondAPIErrorWithRequestID(c, domain.ErrValidationFailed)
		return
	}
	chosen := messages[req.SelectedCharacterMessageIndex]

	view, err := json.Marshal([]promptengine.CharacterMessage{chosen})
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	if err := h.sessions.UpdateFields(ctx, req.SessionID, map[string]interface{}{
		"selected_character_message_index": req.SelectedCharacterMessageIndex,
		"assistant_view_json":              string(view),
	}); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": s.SessionID,
		"message":    chosen.Text,
		"options":    chosen.Options,
	})
}

type generateOptionsRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Context   string `json:"context" binding:"required"`
}

// HandleGenerateOptions serves POST /generate_options (§6): asks the
// external option-generation model for continuations and stores them on the
// session for the next turn.
func (h *SessionHandlers) HandleGenerateOptions(c *gin.Context) {
	var req generateOptionsRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	ctx := c.Request.Context()
	options, err := h.options.Generate(ctx, req.Context)
	if err != nil {
		if errors.Is(err, optiongen.ErrNotConfigured) {
			respondAPIError(c, NewAPIError("OPTION_LLM_NOT_CONFIGURED", "option generation is not configured", http.StatusServiceUnavailable))
			return
		}
		h.logger.Error("option generation failed", "error", err, "session_id", req.SessionID)
		respondAPIErrorWithRequestID(c, err)
		return
	}

	encoded, err := json.Marshal(options)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	if err := h.sessions.UpdateFields(ctx, req.SessionID, map[string]interface{}{
		"generated_options_json": string(encoded),
	}); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"options": options})
}
