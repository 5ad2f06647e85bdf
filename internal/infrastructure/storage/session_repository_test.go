package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratingarena/server/internal/domain"
)

func TestSessionRepository_InsertGetNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, &domain.Session{
		SessionID: "session-1",
		CallerID:  "caller-1",
		CreatedAt: now,
		UpdatedAt: now,
	}))

	got, err := repo.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "caller-1", got.CallerID)
	assert.Equal(t, 0, got.TurnCount)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestSessionRepository_LatestForCaller(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, repo.Insert(ctx, &domain.Session{SessionID: "s1", CallerID: "caller-1", CreatedAt: older, UpdatedAt: older}))

	newer := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, &domain.Session{SessionID: "s2", CallerID: "caller-1", CreatedAt: newer, UpdatedAt: newer}))

	latest, err := repo.LatestForCaller(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.SessionID)

	_, err = repo.LatestForCaller(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestSessionRepository_UpdateFields_IncrementsTurnCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, &domain.Session{SessionID: "s1", CallerID: "caller-1", CreatedAt: now, UpdatedAt: now}))

	require.NoError(t, repo.UpdateFields(ctx, "s1", map[string]interface{}{
		"selected_character_message_index": 1,
		"assistant_view_json":              `{"text":"hi"}`,
	}))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.SelectedCharacterMessageIndex)
	assert.Equal(t, `{"text":"hi"}`, got.AssistantViewJSON)
	assert.Equal(t, 1, got.TurnCount, "UpdateFields must advance the turn counter")

	require.NoError(t, repo.UpdateFields(ctx, "s1", map[string]interface{}{
		"generated_options_json": `["a","b"]`,
	}))
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnCount)
	assert.Equal(t, `["a","b"]`, got.GeneratedOptionsJSON)
}
