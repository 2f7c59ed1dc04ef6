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

func (s *Store) CreateInvite(ctx context.Context, ic domain.InviteCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invite_codes (code, challenge_id, max_uses, used_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ic.Code, ic.ChallengeID, ic.MaxUses, ic.UsedCount, ic.ExpiresAt, ic.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert invite code: %w", err)
	}
	return nil
}

func (s *Store) GetInvite(ctx context.Context, code string) (domain.InviteCode, error) {
	var ic domain.InviteCode
	err := s.pool.QueryRow(ctx, `
		SELECT code, challenge_id, max_uses, used_count, expires_at, created_at
		FROM invite_codes WHERE code = $1
	`, code).Scan(&ic.Code, &ic.ChallengeID, &ic.MaxUses, &ic.UsedCount, &ic.ExpiresAt, &ic.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InviteCode{}, fmt.Errorf("invite %q: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return domain.InviteCode{}, fmt.Errorf("failed to query invite code: %w", err)
	}
	return ic, nil
}

// RedeemInvite consumes one use of code and inserts m in one transaction.
// The conditional increment keeps concurrent redemptions within max_uses.
func (s *Store) RedeemInvite(ctx context.Context, code string, m domain.Membership, now time.Time) (domain.Membership, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var challengeID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE invite_codes SET used_count = used_count + 1
		WHERE code = $1 AND used_count < max_uses AND (expires_at IS NULL OR expires_at > $2)
		RETURNING challenge_id
	`, code, now).Scan(&challengeID)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invite_codes WHERE code = $1)`, code).Scan(&exists); err != nil {
			return domain.Membership{}, fmt.Errorf("failed to query invite code: %w", err)
		}
		if !exists {
			return domain.Membership{}, domain.ErrNotFound
		}
		return domain.Membership{}, domain.ErrInviteUnavailable
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to consume invite code: %w", err)
	}

	var status domain.ChallengeStatus
	err = tx.QueryRow(ctx, `SELECT status FROM challenges WHERE id = $1 FOR SHARE`, challengeID).Scan(&status)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to query challenge status: %w", err)
	}
	if status == domain.StatusCompleted || status == domain.StatusCancelled {
		return domain.Membership{}, domain.ErrChallengeClosed
	}

	m.ChallengeID = challengeID
	tag, err := tx.Exec(ctx, insertMembershipQuery, membershipArgs(m)...)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to insert membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Membership{}, domain.ErrAlreadyMember
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Membership{}, fmt.Errorf("failed to commit invite redemption: %w", err)
	}
	return m, nil
}
