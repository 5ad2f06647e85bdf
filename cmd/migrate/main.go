package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ratingarena/server/internal/infrastructure/storage"
	"github.com/ratingarena/server/migrations"
)

var (
	command string
	dbPath  string
)

func init() {
	flag.StringVar(&command, "command", "up", "Migration command: init, up, down, status, reset")
	flag.StringVar(&dbPath, "db-path", "", "SQLite database path (overrides ARENA_DB_PATH env var)")
}

func main() {
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	path := dbPath
	if path == "" {
		path = os.Getenv("ARENA_DB_PATH")
	}
	if path == "" {
		path = "data/arena.db"
	}

	db, err := storage.NewDB(&storage.Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     15 * time.Second,
	})
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer storage.Close(db)

	migrator, err := storage.NewMigrator(db, migrations.FS)
	if err != nil {
		slog.Error("failed to create migrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := executeCommand(ctx, migrator, command); err != nil {
		slog.Error("migration command failed", slog.String("command", command), slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("migration command completed successfully", slog.String("command", command))
}

func executeCommand(ctx context.Context, migrator *storage.Migrator, cmd string) error {
	switch cmd {
	case "init":
		return migrator.Init(ctx)
	case "up":
		if err := migrator.Init(ctx); err != nil {
			return fmt.Errorf("init failed: %w", err)
		}
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "status":
		return migrator.Status(ctx)
	case "reset":
		return migrator.Reset(ctx)
	default:
		return fmt.Errorf("unknown command: %s (available: init, up, down, status, reset)", cmd)
	}
}
