package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// HealthHandlers serves GET /health.
type HealthHandlers struct {
	models   *storage.ModelRepository
	battles  *storage.BattleRepository
	registry *config.Registry
}

// NewHealthHandlers constructs HealthHandlers.
func NewHealthHandlers(models *storage.ModelRepository, battles *storage.BattleRepository, registry *config.Registry) *HealthHandlers {
	return &HealthHandlers{models: models, battles: battles, registry: registry}
}

// HandleHealth serves GET /health (§6): a liveness snapshot with counts a
// caller can use to verify the arena is populated and serving.
func (h *HealthHandlers) HandleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	models, err := h.models.All(ctx)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	prompts, err := h.registry.FixedPrompts()
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	callerCount, err := h.battles.DistinctCallerCount(ctx)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	completedCount, err := h.battles.CompletedCount(ctx)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                  "ok",
		"models_count":            len(models),
		"fixed_prompts_count":     len(prompts),
		"recorded_users_count":    callerCount,
		"completed_battles_count": completedCount,
	})
}
