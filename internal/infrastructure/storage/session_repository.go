package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/ratingarena/server/internal/domain"
)

// SessionRepository persists stateful multi-turn character-selection flows.
type SessionRepository struct {
	db *bun.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *bun.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get fetches a session by id.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s := new(domain.Session)
	err := IDB(ctx, r.db).NewSelect().Model(s).Where("session_id = ?", sessionID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// Insert creates a new session row.
func (r *SessionRepository) Insert(ctx context.Context, s *domain.Session) error {
	_, err := IDB(ctx, r.db).NewInsert().Model(s).Exec(ctx)
	return err
}

// LatestForCaller returns the caller's most recently created session.
func (r *SessionRepository) LatestForCaller(ctx context.Context, callerID string) (*domain.Session, error) {
	s := new(domain.Session)
	err := IDB(ctx, r.db).NewSelect().Model(s).
		Where("caller_id = ?", callerID).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// UpdateFields replaces an arbitrary subset of columns by name (§3 "replace
// whole column"), incrementing turn_count and refreshing updated_at.
func (r *SessionRepository) UpdateFields(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	q := IDB(ctx, r.db).NewUpdate().Model((*domain.Session)(nil)).Where("session_id = ?", sessionID)
	for col, val := range fields {
		q = q.Set("? = ?", bun.Ident(col), val)
	}
	q = q.Set("turn_count = turn_count + 1").Set("updated_at = ?", time.Now().UTC())
	_, err := q.Exec(ctx)
	return err
}
