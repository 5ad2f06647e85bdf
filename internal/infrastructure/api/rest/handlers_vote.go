package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appvote "github.com/ratingarena/server/internal/application/vote"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/logger"
)

// VoteHandlers serves POST /vote/{battle_id}.
type VoteHandlers struct {
	controller *appvote.Controller
	logger     *logger.Logger
}

// NewVoteHandlers constructs VoteHandlers.
func NewVoteHandlers(controller *appvote.Controller, log *logger.Logger) *VoteHandlers {
	return &VoteHandlers{controller: controller, logger: log}
}

type castVoteRequest struct {
	VoteChoice string `json:"vote_choice"`
	DiscordID  string `json:"discord_id"`
}

// HandleVote serves POST /vote/{battle_id} (§4.H, §6).
func (h *VoteHandlers) HandleVote(c *gin.Context) {
	battleID, ok := getParam(c, "battle_id")
	if !ok {
		return
	}

	var req castVoteRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	c.Set(ContextKeyCallerID, req.DiscordID)

	var choice domain.VoteChoice
	switch req.VoteChoice {
	case string(domain.VoteModelA), string(domain.VoteModelB), string(domain.VoteTie), string(domain.VoteSkip):
		choice = domain.VoteChoice(req.VoteChoice)
	default:
		respondAPIErrorWithRequestID(c, domain.ErrInvalidVoteChoice)
		return
	}

	result, err := h.controller.Cast(c.Request.Context(), battleID, choice, req.DiscordID)
	if err != nil {
		apiErr := TranslateError(err)
		c.JSON(apiErr.HTTPStatus, gin.H{"status": "error", "message": apiErr.Message})
		return
	}

	winner := string(result.Winner)
	if result.Winner == domain.VoteTie {
		winner = "Tie"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"winner":       winner,
		"model_a_name": result.ModelAName,
		"model_b_name": result.ModelBName,
	})
}
