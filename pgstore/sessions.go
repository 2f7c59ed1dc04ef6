package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/domain"
)

func (s *Store) ReplaceSession(ctx context.Context, sess domain.LeetcodeSession) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `UPDATE leetcode_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO leetcode_sessions (id, user_id, sealed, expires_at, is_active, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.UserID, sess.Sealed, sess.ExpiresAt, sess.IsActive, sess.LastUsedAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (s *Store) ActiveSession(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.LeetcodeSession, error) {
	var sess domain.LeetcodeSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, sealed, expires_at, is_active, last_used_at, created_at
		FROM leetcode_sessions
		WHERE user_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, now).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Sealed,
		&sess.ExpiresAt,
		&sess.IsActive,
		&sess.LastUsedAt,
		&sess.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE leetcode_sessions SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeactivateSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE leetcode_sessions SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return nil
}
