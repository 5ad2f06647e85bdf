// Package battle implements battle creation, retry and unstuck recovery
// (§4.G). It coordinates the matchmaker, the model client, and the preset
// answer packs to fill both sides of a battle before handing it to a voter.
package battle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ratingarena/server/internal/application/matchmaker"
	"github.com/ratingarena/server/internal/application/modelclient"
	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
	"github.com/ratingarena/server/internal/infrastructure/storage"
)

// ErrCancelled is returned by Create when the battle row was deleted or
// moved out of pending_generation (by the janitor or an unstuck call) while
// responses were still being generated (§4.G step 3.e, §9).
var ErrCancelled = errors.New("battle cancelled during generation")

// Controller creates and recovers battles.
type Controller struct {
	battles  *storage.BattleRepository
	models   *storage.ModelRepository
	registry *config.Registry
	mm       *matchmaker.Matchmaker
	client   *modelclient.Client
	rate     config.RateLimitConfig
}

// NewController constructs a battle Controller.
func NewController(
	battles *storage.BattleRepository,
	models *storage.ModelRepository,
	registry *config.Registry,
	mm *matchmaker.Matchmaker,
	client *modelclient.Client,
	rate config.RateLimitConfig,
) *Controller {
	return &Controller{battles: battles, models: models, registry: registry, mm: mm, client: client, rate: rate}
}

// checkRateLimits enforces §4.G step 1 in order, raising a *domain.RateLimitError
// carrying the earliest retry instant on the first violated rule.
func (c *Controller) checkRateLimits(ctx context.Context, callerID string) error {
	now := time.Now().UTC()

	if c.rate.MaxConcurrentBattles > 0 {
		n, err := c.battles.PendingCountForCaller(ctx, callerID)
		if err != nil {
			return fmt.Errorf("count pending battles: %w", err)
		}
		if n >= c.rate.MaxConcurrentBattles {
			return &domain.RateLimitError{
				Reason:      "too many concurrent battles",
				AvailableAt: now,
			}
		}
	}

	if c.rate.MaxBattlesPerHour > 0 {
		cutoff := now.Add(-c.rate.BattleCreationWindow)
		n, err := c.battles.CreatedCountSince(ctx, callerID, cutoff)
		if err != nil {
			return fmt.Errorf("count recent battles: %w", err)
		}
		if n >= c.rate.MaxBattlesPerHour {
			return &domain.RateLimitError{
				Reason:      "hourly battle limit reached",
				AvailableAt: cutoff.Add(c.rate.BattleCreationWindow),
			}
		}
	}

	if c.rate.MinBattleInterval > 0 {
		latest, err := c.battles.LatestForCaller(ctx, callerID)
		if err != nil && !errors.Is(err, domain.ErrBattleNotFound) {
			return fmt.Errorf("load latest battle: %w", err)
		}
		if latest != nil {
			availableAt := latest.CreatedAt.Add(c.rate.MinBattleInterval)
			if now.Before(availableAt) {
				return &domain.RateLimitError{
					Reason:      "battles requested too close together",
					AvailableAt: availableAt,
				}
			}
		}
	}

	return nil
}

// pickPrompt draws a prompt uniformly from the fixed-prompt map and derives
// its theme as the substring before the first underscore in its id (§4.G
// step 2).
func pickPrompt(prompts map[string]string) (promptID, promptText, theme string, err error) {
	if len(prompts) == 0 {
		return "", "", "", fmt.Errorf("no fixed prompts configured")
	}
	ids := make([]string, 0, len(prompts))
	for id := range prompts {
		ids = append(ids, id)
	}
	promptID = ids[rand.Intn(len(ids))]
	promptText = prompts[promptID]
	theme = "general"
	for i, r := range promptID {
		if r == '_' {
			theme = promptID[:i]
			break
		}
	}
	return promptID, promptText, theme, nil
}

// Create runs the full battle-creation flow for battleType on behalf of
// callerID (§4.G "Create battle").
func (c *Controller) Create(ctx context.Context, battleType domain.BattleType, callerID string) (*domain.Battle, error) {
	if err := c.checkRateLimits(ctx, callerID); err != nil {
		return nil, err
	}

	prompts, err := c.registry.FixedPrompts()
	if err != nil {
		return nil, fmt.Errorf("load fixed prompts: %w", err)
	}
	promptID, promptText, theme, err := pickPrompt(prompts)
	if err != nil {
		return nil, err
	}

	battleID := uuid.NewString()
	exclude := map[string]bool{}
	var lastErr error

	maxRetries := c.rate.MaxBattleRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		sel, err := c.mm.Select(ctx, battleType, promptID, exclude)
		if err != nil {
			lastErr = err
			break
		}
		exclude[sel.ModelAID] = true
		exclude[sel.ModelBID] = true

		now := time.Now().UTC()
		if attempt == 0 {
			b := &domain.Battle{
				BattleID:    battleID,
				BattleType:  battleType,
				PromptID:    promptID,
				PromptTheme: theme,
				Prompt:      promptText,
				ModelAID:    sel.ModelAID,
				ModelAName:  sel.ModelAName,
				ModelBID:    sel.ModelBID,
				ModelBName:  sel.ModelBName,
				Status:      domain.BattleStatusPendingGeneration,
				CallerID:    callerID,
				Timestamp:   now,
				CreatedAt:   now,
			}
			if err := c.battles.Insert(ctx, b); err != nil {
				return nil, fmt.Errorf("insert battle: %w", err)
			}
		} else {
			if err := c.battles.UpdateModels(ctx, battleID, sel.ModelAID, sel.ModelAName, sel.ModelBID, sel.ModelBName); err != nil {
				return nil, fmt.Errorf("update battle models: %w", err)
			}
		}

		responseA, responseB, genErr := c.generateBoth(ctx, sel, promptID, promptText)
		if genErr != nil {
			lastErr = genErr
			continue
		}

		status, err := c.battles.Status(ctx, battleID)
		if err != nil {
			if errors.Is(err, domain.ErrBattleNotFound) {
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("recheck battle status: %w", err)
		}
		if status != domain.BattleStatusPendingGeneration {
			return nil, ErrCancelled
		}

		if err := c.battles.FinalizeResponses(ctx, battleID, responseA, responseB); err != nil {
			return nil, fmt.Errorf("finalize battle: %w", err)
		}
		return c.battles.Get(ctx, battleID)
	}

	_ = c.battles.Delete(ctx, battleID)
	if lastErr == nil {
		lastErr = fmt.Errorf("creation failed")
	}
	return nil, lastErr
}

// generateBoth resolves both response sides concurrently: a preset model
// draws uniformly from its answer pack, a live model is called through the
// model client (§4.G step 3.d).
func (c *Controller) generateBoth(ctx context.Context, sel *matchmaker.Selection, promptID, promptText string) (responseA, responseB string, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := c.resolveResponse(gctx, sel.ModelAID, promptID, promptText)
		if err != nil {
			return fmt.Errorf("model a: %w", err)
		}
		responseA = r
		return nil
	})
	g.Go(func() error {
		r, err := c.resolveResponse(gctx, sel.ModelBID, promptID, promptText)
		if err != nil {
			return fmt.Errorf("model b: %w", err)
		}
		responseB = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return responseA, responseB, nil
}

func (c *Controller) resolveResponse(ctx context.Context, modelID, promptID, promptText string) (string, error) {
	presetIDs := c.registry.PresetModelIDs()
	if presetIDs[modelID] {
		answers, err := c.registry.PresetAnswers(modelID, promptID)
		if err != nil {
			return "", fmt.Errorf("load preset answers: %w", err)
		}
		if len(answers) == 0 {
			return "", fmt.Errorf("no preset answers for %s/%s", modelID, promptID)
		}
		return answers[rand.Intn(len(answers))], nil
	}

	descriptors, err := c.registry.Models()
	if err != nil {
		return "", fmt.Errorf("load models: %w", err)
	}
	var descriptor *config.ModelDescriptor
	for i := range descriptors {
		if descriptors[i].ID == modelID {
			descriptor = &descriptors[i]
			break
		}
	}
	if descriptor == nil {
		return "", fmt.Errorf("model %s not configured", modelID)
	}

	messages := []modelclient.Message{{Role: "user", Content: promptText}}
	return c.client.Generate(ctx, *descriptor, messages)
}

// Unstuck deletes every pending_generation battle for callerID and returns
// the number deleted (§4.G "Unstuck").
func (c *Controller) Unstuck(ctx context.Context, callerID string) (int, error) {
	return c.battles.DeletePendingGenerationForCaller(ctx, callerID)
}

// Reveal flips a battle's reveal flag and returns its model names.
func (c *Controller) Reveal(ctx context.Context, battleID string) (*domain.Battle, error) {
	b, err := c.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if err := c.battles.SetRevealed(ctx, battleID); err != nil {
		return nil, err
	}
	b.Revealed = true
	return b, nil
}
