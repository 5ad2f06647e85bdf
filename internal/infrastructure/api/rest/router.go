package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appbattle "github.com/ratingarena/server/internal/application/battle"
	"github.com/ratingarena/server/internal/application/optiongen"
	"github.com/ratingarena/server/internal/application/promptengine"
	appvote "github.com/ratingarena/server/internal/application/vote"
	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
	"github.com/uptrace/bun"
)

// Dependencies bundles everything the router wires into handlers.
type Dependencies struct {
	DB       *bun.DB
	Config   *config.Config
	Logger   *logger.Logger
	Registry *config.Registry

	Battles      *storage.BattleRepository
	Models       *storage.ModelRepository
	Sessions     *storage.SessionRepository
	BattleCtl    *appbattle.Controller
	VoteCtl      *appvote.Controller
	PromptEngine promptengine.Engine
	OptionGen    *optiongen.Generator
}

// NewRouter builds the gin engine and registers every §4.J endpoint.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	loggingMiddleware := NewLoggingMiddleware(deps.Logger)
	recoveryMiddleware := NewRecoveryMiddleware(deps.Logger)

	router.Use(recoveryMiddleware.Recovery())
	router.Use(loggingMiddleware.RequestLogger())

	if deps.Config.Server.CORS {
		router.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
		})
	}

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := storage.Ping(ctx, deps.DB); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		NewHealthHandlers(deps.Models, deps.Battles, deps.Registry).HandleHealth(c)
	})

	battleHandlers := NewBattleHandlers(deps.BattleCtl, deps.Battles, deps.Sessions, deps.PromptEngine, deps.Logger)
	voteHandlers := NewVoteHandlers(deps.VoteCtl, deps.Logger)
	leaderboardHandlers := NewLeaderboardHandlers(deps.Models, deps.Battles)
	sessionHandlers := NewSessionHandlers(deps.Sessions, deps.PromptEngine, deps.OptionGen, deps.Logger)

	router.POST("/battle", battleHandlers.HandleCreateBattle)
	router.GET("/battle/:id", battleHandlers.HandleGetBattle)
	router.POST("/battleback", battleHandlers.HandleBattleBack)
	router.POST("/battleunstuck", battleHandlers.HandleUnstuck)
	router.POST("/reveal/:id", battleHandlers.HandleReveal)

	router.POST("/vote/:battle_id", voteHandlers.HandleVote)

	router.GET("/leaderboard", leaderboardHandlers.HandleLeaderboard)

	router.POST("/sessions/latest", sessionHandlers.HandleLatestSession)
	router.POST("/character_selection", sessionHandlers.HandleCharacterSelection)
	router.POST("/generate_options", sessionHandlers.HandleGenerateOptions)

	api := router.Group("/api")
	{
		api.GET("/battle_statistics", leaderboardHandlers.HandleBattleStatistics)
		api.GET("/prompt_statistics", leaderboardHandlers.HandlePromptStatistics)
	}

	return router
}
