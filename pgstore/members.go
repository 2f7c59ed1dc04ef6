package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/domain"
)

const memberColumns = `id, challenge_id, user_id, current_streak, longest_streak,
	total_penalties, is_active, joined_at`

func scanMembership(row rowScanner) (domain.Membership, error) {
	var m domain.Membership
	err := row.Scan(
		&m.ID,
		&m.ChallengeID,
		&m.UserID,
		&m.CurrentStreak,
		&m.LongestStreak,
		&m.TotalPenalties,
		&m.IsActive,
		&m.JoinedAt,
	)
	return m, err
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, leetcode_username)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Username, u.Email, u.LeetcodeUsername)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, leetcode_username FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.LeetcodeUsername)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *Store) GetMembership(ctx context.Context, id uuid.UUID) (domain.Membership, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM challenge_members WHERE id = $1`, id)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Membership{}, fmt.Errorf("membership %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to query membership: %w", err)
	}
	return m, nil
}

func (s *Store) GetMembershipByPair(ctx context.Context, challengeID, userID uuid.UUID) (*domain.Membership, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM challenge_members
		WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query membership: %w", err)
	}
	return &m, nil
}

func (s *Store) ListActiveMemberships(ctx context.Context, challengeID uuid.UUID) ([]domain.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memberColumns+` FROM challenge_members
		WHERE challenge_id = $1 AND is_active
		ORDER BY joined_at
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var res []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return res, nil
}

const insertMembershipQuery = `
	INSERT INTO challenge_members (` + memberColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (challenge_id, user_id) DO NOTHING
`

func membershipArgs(m domain.Membership) []any {
	return []any{
		m.ID,
		m.ChallengeID,
		m.UserID,
		m.CurrentStreak,
		m.LongestStreak,
		m.TotalPenalties,
		m.IsActive,
		m.JoinedAt,
	}
}

func (s *Store) CreateMembership(ctx context.Context, m domain.Membership) error {
	tag, err := s.pool.Exec(ctx, insertMembershipQuery, membershipArgs(m)...)
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyMember
	}
	return nil
}
