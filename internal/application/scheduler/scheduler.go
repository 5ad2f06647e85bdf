// Package scheduler runs the long-lived background jobs described in §4.I:
// stale-row cleanup, periodic rating updates, hourly backups, daily
// promotion/relegation, and config hot-reload.
package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/ratingarena/server/internal/application/rating"
	"github.com/ratingarena/server/internal/application/tiermanager"
	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/logger"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// Scheduler owns every background job and the shared cancellation signal
// they listen to.
type Scheduler struct {
	battles  *storage.BattleRepository
	models   *storage.ModelRepository
	registry *config.Registry
	engine   *rating.Engine
	tiers    *tiermanager.Manager
	log      *logger.Logger

	rate config.RateLimitConfig
	db   config.DatabaseConfig
	rt   config.RatingConfig
	path config.PathsConfig

	cron *cron.Cron
}

// New constructs a Scheduler.
func New(
	battles *storage.BattleRepository,
	models *storage.ModelRepository,
	registry *config.Registry,
	engine *rating.Engine,
	tiers *tiermanager.Manager,
	log *logger.Logger,
	rate config.RateLimitConfig,
	db config.DatabaseConfig,
	rt config.RatingConfig,
	path config.PathsConfig,
) *Scheduler {
	return &Scheduler{
		battles: battles, models: models, registry: registry, engine: engine, tiers: tiers, log: log,
		rate: rate, db: db, rt: rt, path: path,
		cron: cron.New(cron.WithLocation(mustShanghai())),
	}
}

func mustShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Run starts every job as a goroutine and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.runJanitor(ctx)
	if s.rt.UpdatePeriodMinutes > 0 {
		go s.runRatingPeriod(ctx)
	}
	go s.runHourlyBackup(ctx)
	go s.runFileWatcher(ctx)

	s.cron.AddFunc("0 4 * * *", func() {
		if err := s.tiers.PromoteAndRelegate(context.Background()); err != nil {
			s.log.Error("promotion/relegation failed", "error", err)
		}
	})
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// runJanitor deletes stale pending_vote and pending_generation rows every
// 300 seconds (§4.I).
func (s *Scheduler) runJanitor(ctx context.Context) {
	for sleep(ctx, s.rate.CleanupInterval) {
		now := time.Now().UTC()
		voteCutoff := now.Add(-time.Duration(s.rate.BattleTimeoutMinutes) * time.Minute)
		n, err := s.battles.DeleteStaleBefore(ctx, domain.BattleStatusPendingVote, voteCutoff)
		if err != nil {
			s.log.Error("janitor: delete stale pending_vote failed", "error", err)
		} else if n > 0 {
			s.log.Info("janitor: deleted stale pending_vote battles", "count", n)
		}

		genCutoff := now.Add(-s.rate.GenerationTimeout)
		n, err = s.battles.DeleteStaleBefore(ctx, domain.BattleStatusPendingGeneration, genCutoff)
		if err != nil {
			s.log.Error("janitor: delete stale pending_generation failed", "error", err)
		} else if n > 0 {
			s.log.Info("janitor: deleted stale pending_generation battles", "count", n)
		}
	}
}

// runRatingPeriod wakes up at each wall-clock hour top and runs the batch
// rating update (§4.I).
func (s *Scheduler) runRatingPeriod(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(time.Hour).Add(time.Hour)
		if !sleep(ctx, next.Sub(now)) {
			return
		}
		if err := s.engine.RunRatingUpdate(ctx); err != nil {
			s.log.Error("rating period update failed", "error", err)
			continue
		}
		s.log.Info("rating period update completed", "at", time.Now().UTC())
	}
}

// runHourlyBackup copies the SQLite file to backups/arena_<timestamp>.db
// every hour and retains the most recent MaxBackups by mtime (§4.I).
func (s *Scheduler) runHourlyBackup(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(time.Hour).Add(time.Hour)
		if !sleep(ctx, next.Sub(now)) {
			return
		}
		if err := s.backupOnce(); err != nil {
			s.log.Error("hourly backup failed", "error", err)
		}
	}
}

func (s *Scheduler) backupOnce() error {
	name := "arena_" + time.Now().UTC().Format("20060102-150405") + ".db"
	dest := filepath.Join(s.path.BackupDir, name)
	if err := copyFile(s.db.Path, dest); err != nil {
		return err
	}
	return pruneBackups(s.path.BackupDir, s.path.MaxBackups)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func pruneBackups(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type backup struct {
		path  string
		mtime time.Time
	}
	var backups []backup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(dir, e.Name()), mtime: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mtime.After(backups[j].mtime) })
	for _, b := range backups[min(keep, len(backups)):] {
		_ = os.Remove(b.path)
	}
	return nil
}

// runFileWatcher observes the config directory and force-reloads the
// registry's cached files on change, debounced 2 seconds per path (§4.I).
func (s *Scheduler) runFileWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error("file watcher: failed to start", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.path.ConfigDir); err != nil {
		s.log.Error("file watcher: failed to watch config dir", "error", err, "dir", s.path.ConfigDir)
		return
	}

	debounce := map[string]*time.Timer{}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if t, exists := debounce[ev.Name]; exists {
				t.Stop()
			}
			debounce[ev.Name] = time.AfterFunc(2*time.Second, func() {
				s.handleConfigChange(ctx, ev.Name)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("file watcher error", "error", err)
		}
	}
}

func (s *Scheduler) handleConfigChange(ctx context.Context, path string) {
	switch filepath.Base(path) {
	case filepath.Base(s.registryModelsPath()):
		s.registry.ForceReloadModels()
		descriptors, err := s.registry.Models()
		if err != nil {
			s.log.Error("reload models.json failed", "error", err)
			return
		}
		if err := s.models.SyncFromRegistry(ctx, descriptors, s.registry.ModelScoreSeeds(), s.rt); err != nil {
			s.log.Error("resync models table failed", "error", err)
			return
		}
		s.log.Info("models.json reloaded", "count", len(descriptors))
	case filepath.Base(s.registryPromptsPath()):
		s.registry.ForceReloadFixedPrompts()
		s.log.Info("fixed_prompts.json reloaded")
	}
}

func (s *Scheduler) registryModelsPath() string  { return s.path.ModelsFile }
func (s *Scheduler) registryPromptsPath() string { return s.path.FixedPromptsFile }
