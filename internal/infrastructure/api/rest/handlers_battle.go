package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbattle "github.com/ratingarena/server/internal/application/battle"
	"github.com/ratingarena/server/internal/application/promptengine"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// BattleHandlers serves /battle, /battleback, /battleunstuck and /reveal/{id}.
type BattleHandlers struct {
	controller *appbattle.Controller
	battles    *storage.BattleRepository
	sessions   *storage.SessionRepository
	engine     promptengine.Engine
	logger     *logger.Logger
}

// NewBattleHandlers constructs BattleHandlers.
func NewBattleHandlers(
	controller *appbattle.Controller,
	battles *storage.BattleRepository,
	sessions *storage.SessionRepository,
	engine promptengine.Engine,
	log *logger.Logger,
) *BattleHandlers {
	return &BattleHandlers{controller: controller, battles: battles, sessions: sessions, engine: engine, logger: log}
}

type createBattleRequest struct {
	SessionID  string  `json:"session_id"`
	BattleType string  `json:"battle_type"`
	DiscordID  string  `json:"discord_id"`
	Input      *string `json:"input"`
}

// HandleCreateBattle serves POST /battle (§4.J, §6). A null input performs
// the initial character-message retrieval through the external prompt
// engine; a non-null input creates or continues the pairwise battle itself.
func (h *BattleHandlers) HandleCreateBattle(c *gin.Context) {
	var req createBattleRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	callerID := req.DiscordID
	c.Set(ContextKeyCallerID, callerID)
	if callerID == "" {
		respondAPIError(c, NewAPIError("MISSING_PARAMETER", "discord_id is required", http.StatusBadRequest))
		return
	}

	if req.Input == nil {
		h.handleCharacterRetrieval(c, req)
		return
	}

	var battleType domain.BattleType
	switch req.BattleType {
	case string(domain.BattleTypeHighTier):
		battleType = domain.BattleTypeHighTier
	case string(domain.BattleTypeLowTier):
		battleType = domain.BattleTypeLowTier
	default:
		respondAPIErrorWithRequestID(c, domain.ErrInvalidBattleType)
		return
	}

	b, err := h.controller.Create(c.Request.Context(), battleType, callerID)
	if err != nil {
		if errors.Is(err, appbattle.ErrCancelled) {
			c.JSON(http.StatusConflict, gin.H{"status": "cancelled"})
			return
		}
		var rl *domain.RateLimitError
		if errors.As(err, &rl) {
			c.JSON(http.StatusTooManyRequests, gin.H{"message": rl.Error(), "available_at": rl.AvailableAt})
			return
		}
		h.logger.Error("battle creation failed", "error", err, "caller_id", callerID)
		respondAPIErrorWithRequestID(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"battle_id":    b.BattleID,
		"prompt":       b.Prompt,
		"prompt_theme": b.PromptTheme,
		"response_a":   b.ResponseA,
		"response_b":   b.ResponseB,
		"status":       string(b.Status),
	})
}

// handleCharacterRetrieval serves the null-input branch of POST /battle: it
// opens (or reuses) a session and returns the opening character messages
// produced by the external prompt engine (§6).
func (h *BattleHandlers) handleCharacterRetrieval(c *gin.Context, req createBattleRequest) {
	ctx := c.Request.Context()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		now := time.Now().UTC()
		if err := h.sessions.Insert(ctx, &domain.Session{
			SessionID: sessionID,
			CallerID:  req.DiscordID,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			h.logger.Error("session creation failed", "error", err, "caller_id", req.DiscordID)
			respondAPIErrorWithRequestID(c, err)
			return
		}
	}

	cfg, messages, err := h.engine.InitialMessages(ctx, sessionID)
	if err != nil {
		h.logger.Error("character retrieval failed", "error", err, "session_id", sessionID)
		respondAPIErrorWithRequestID(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battle_id":          sessionID,
		"config":             cfg,
		"character_messages": messages,
		"status":             "pending_character_selection",
	})
}

// HandleBattleBack serves POST /battleback: projects the caller's most
// recent battle to whichever shape matches its current status (§6).
func (h *BattleHandlers) HandleBattleBack(c *gin.Context) {
	var req struct {
		DiscordID string `json:"discord_id"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}
	c.Set(ContextKeyCallerID, req.DiscordID)

	b, err := h.battles.LatestForCaller(c.Request.Context(), req.DiscordID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	switch b.Status {
	case domain.BattleStatusPendingGeneration:
		c.JSON(http.StatusOK, gin.H{"status": string(b.Status), "message": "battle is still being generated"})
	case domain.BattleStatusPendingVote:
		c.JSON(http.StatusOK, gin.H{
			"battle_id":    b.BattleID,
			"prompt":       b.Prompt,
			"prompt_theme": b.PromptTheme,
			"response_a":   b.ResponseA,
			"response_b":   b.ResponseB,
			"status":       string(b.Status),
		})
	default:
		respondBattleDetail(c, b)
	}
}

// HandleUnstuck serves POST /battleunstuck.
func (h *BattleHandlers) HandleUnstuck(c *gin.Context) {
	var req struct {
		DiscordID string `json:"discord_id"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}
	c.Set(ContextKeyCallerID, req.DiscordID)

	n, err := h.controller.Unstuck(c.Request.Context(), req.DiscordID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": pluralizeUnstuck(n)})
}

func pluralizeUnstuck(n int) string {
	if n == 1 {
		return "1 stuck battle cleared"
	}
	return strconv.Itoa(n) + " stuck battles cleared"
}

// HandleGetBattle serves GET /battle/{id}, gating model identity on the
// row's reveal flag (§6).
func (h *BattleHandlers) HandleGetBattle(c *gin.Context) {
	id, ok := getParam(c, "id")
	if !ok {
		return
	}
	b, err := h.battles.Get(c.Request.Context(), id)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	respondBattleDetail(c, b)
}

func respondBattleDetail(c *gin.Context, b *domain.Battle) {
	body := gin.H{
		"battle_id":    b.BattleID,
		"prompt":       b.Prompt,
		"prompt_theme": b.PromptTheme,
		"response_a":   b.ResponseA,
		"response_b":   b.ResponseB,
		"status":       string(b.Status),
		"revealed":     b.Revealed,
	}
	if b.Winner != nil {
		if *b.Winner == domain.VoteTie {
			body["winner"] = "Tie"
		} else {
			body["winner"] = string(*b.Winner)
		}
	}
	if b.Revealed {
		body["model_a"] = b.ModelAName
		body["model_b"] = b.ModelBName
	}
	c.JSON(http.StatusOK, body)
}

// HandleReveal serves POST /reveal/{id}: idempotently flips the reveal flag
// and returns model identities.
func (h *BattleHandlers) HandleReveal(c *gin.Context) {
	id, ok := getParam(c, "id")
	if !ok {
		return
	}
	b, err := h.controller.Reveal(c.Request.Context(), id)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model_a_id":   b.ModelAID,
		"model_b_id":   b.ModelBID,
		"model_a_name": b.ModelAName,
		"model_b_name": b.ModelBName,
	})
}

