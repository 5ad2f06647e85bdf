package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ratingarena/server/internal/application/rating"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// LeaderboardHandlers serves /leaderboard and the statistics endpoints.
type LeaderboardHandlers struct {
	models  *storage.ModelRepository
	battles *storage.BattleRepository
}

// NewLeaderboardHandlers constructs LeaderboardHandlers.
func NewLeaderboardHandlers(models *storage.ModelRepository, battles *storage.BattleRepository) *LeaderboardHandlers {
	return &LeaderboardHandlers{models: models, battles: battles}
}

// HandleLeaderboard serves GET /leaderboard (§4.D, §6): ranked active models
// plus the next wall-clock hour at which the batch rating update runs.
func (h *LeaderboardHandlers) HandleLeaderboard(c *gin.Context) {
	models, err := h.models.All(c.Request.Context())
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	entries := rating.GenerateLeaderboard(models)
	now := time.Now().UTC()
	nextUpdate := now.Truncate(time.Hour).Add(time.Hour)

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":      entries,
		"next_update_time": nextUpdate.Format(time.RFC3339),
	})
}

// HandleBattleStatistics serves GET /api/battle_statistics (§6): per-model
// battles/wins/ties/skips plus a derived win rate, keyed by model name.
func (h *LeaderboardHandlers) HandleBattleStatistics(c *gin.Context) {
	stats, err := h.battles.PerModelStats(c.Request.Context())
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	out := make(map[string]gin.H, len(stats))
	for name, s := range stats {
		effective := s.Battles - s.Ties - s.Skips
		winRate := 0.0
		if effective > 0 {
			winRate = (float64(s.Wins) + 0.5*float64(s.Ties)) / float64(effective) * 100
		}
		out[name] = gin.H{
			"battles":             s.Battles,
			"wins":                s.Wins,
			"ties":                s.Ties,
			"skips":               s.Skips,
			"win_rate_percentage": winRate,
		}
	}
	c.JSON(http.StatusOK, gin.H{"battle_statistics": out})
}

// HandlePromptStatistics serves GET /api/prompt_statistics (§6): per-prompt
// battle counts and completion rate.
func (h *LeaderboardHandlers) HandlePromptStatistics(c *gin.Context) {
	stats, err := h.battles.PerPromptStats(c.Request.Context())
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	out := make([]gin.H, 0, len(stats))
	for _, s := range stats {
		completionRate := 0.0
		if s.Battles > 0 {
			completionRate = float64(s.CompletedCount) / float64(s.Battles) * 100
		}
		out = append(out, gin.H{
			"prompt_id":       s.PromptID,
			"prompt_theme":    s.PromptTheme,
			"battles":         s.Battles,
			"completion_rate": completionRate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"prompt_statistics": out})
}
