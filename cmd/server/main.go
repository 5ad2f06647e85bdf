// Rating Arena Server - anonymous pairwise-comparison rating arena for LLMs.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbattle "github.com/ratingarena/server/internal/application/battle"
	"github.com/ratingarena/server/internal/application/matchmaker"
	"github.com/ratingarena/server/internal/application/modelclient"
	"github.com/ratingarena/server/internal/application/optiongen"
	"github.com/ratingarena/server/internal/application/promptengine"
	"github.com/ratingarena/server/internal/application/rating"
	"github.com/ratingarena/server/internal/application/scheduler"
	"github.com/ratingarena/server/internal/application/tiermanager"
	appvote "github.com/ratingarena/server/internal/application/vote"
	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/infrastructure/api/rest"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
	"github.com/ratingarena/server/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting rating arena server", "port", cfg.Server.Port)

	db, err := storage.NewDB(&storage.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		BusyTimeout:     cfg.Database.BusyTimeout,
		Debug:           cfg.Logging.Level == "debug",
	})
	if err != nil {
		appLogger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)

	migrator, err := storage.NewMigrator(db, migrations.FS)
	if err != nil {
		appLogger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	if err := migrator.Init(context.Background()); err != nil {
		appLogger.Error("migration init failed", "error", err)
		os.Exit(1)
	}
	if err := migrator.Up(context.Background()); err != nil {
		appLogger.Error("migration up failed", "error", err)
		os.Exit(1)
	}
	appLogger.Info("database migrated")

	registry := config.NewRegistry(cfg)

	battles := storage.NewBattleRepository(db)
	models := storage.NewModelRepository(db)
	sessions := storage.NewSessionRepository(db)
	votes := storage.NewVoteRepository(db)
	pending := storage.NewPendingMatchRepository(db)

	descriptors, err := registry.Models()
	if err != nil {
		appLogger.Error("failed to load models.json", "error", err)
		os.Exit(1)
	}
	if len(descriptors) < 2 {
		appLogger.Error("at least two models must be configured", "model_count", len(descriptors))
		os.Exit(1)
	}
	if prompts, err := registry.FixedPrompts(); err != nil || len(prompts) == 0 {
		appLogger.Error("fixed prompts must load and be non-empty", "error", err)
		os.Exit(1)
	}
	if err := models.SyncFromRegistry(context.Background(), descriptors, registry.ModelScoreSeeds(), cfg.Rating); err != nil {
		appLogger.Error("failed to sync models table", "error", err)
		os.Exit(1)
	}

	tiers := tiermanager.NewManager(models, appLogger, cfg.Tier.PromotionRelegationCount)
	if err := tiers.InitializeModelTiers(context.Background()); err != nil {
		appLogger.Error("failed to initialize model tiers", "error", err)
		os.Exit(1)
	}
	appLogger.Info("model tiers initialized", "model_count", len(descriptors))

	mm := matchmaker.NewMatchmaker(models, registry, cfg.Matchmaking)
	client := modelclient.NewClient(cfg.RateLimit.GenerationTimeout, cfg.RateLimit.MaxAttemptsPerKey, cfg.RateLimit.RetryDelay)
	battleCtl := appbattle.NewController(battles, models, registry, mm, client, cfg.RateLimit)

	ratingEngine := rating.NewEngine(db, models, pending, cfg.Rating)
	voteCtl := appvote.NewController(db, battles, votes, pending, ratingEngine, cfg.AntiCheat, cfg.Rating)

	promptEngine := promptengine.NewStub()
	optionGenerator := optiongen.NewGenerator(cfg.OptionLLM, cfg.RateLimit.GenerationTimeout)

	sched := scheduler.New(battles, models, registry, ratingEngine, tiers, appLogger, cfg.RateLimit, cfg.Database, cfg.Rating, cfg.Paths)
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go sched.Run(schedulerCtx)

	router := rest.NewRouter(rest.Dependencies{
		DB:           db,
		Config:       cfg,
		Logger:       appLogger,
		Registry:     registry,
		Battles:      battles,
		Models:       models,
		Sessions:     sessions,
		BattleCtl:    battleCtl,
		VoteCtl:      voteCtl,
		PromptEngine: promptEngine,
		OptionGen:    optionGenerator,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("server error", "error", err)
		stopScheduler()
		os.Exit(1)

	case sig := <-shutdown:
		appLogger.Info("server shutdown initiated", "signal", sig)
		stopScheduler()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := httpServer.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}
		appLogger.Info("server stopped")
	}
}
