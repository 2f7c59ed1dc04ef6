package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/domain"
)

const challengeColumns = `id, owner_id, name, difficulty_filter, min_submissions_per_day,
	unique_problem_constraint, penalty_amount, start_date, end_date, status, visibility, created_at`

func scanChallenge(row rowScanner) (domain.Challenge, error) {
	var c domain.Challenge
	var filter []string
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&filter,
		&c.MinSubmissionsPerDay,
		&c.UniqueProblemConstraint,
		&c.PenaltyAmount,
		&c.StartDate,
		&c.EndDate,
		&c.Status,
		&c.Visibility,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.Challenge{}, err
	}
	for _, d := range filter {
		c.DifficultyFilter = append(c.DifficultyFilter, domain.Difficulty(d))
	}
	return c, nil
}

func (s *Store) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid challenge: %w", err)
	}
	filter := make([]string, len(c.DifficultyFilter))
	for i, d := range c.DifficultyFilter {
		filter[i] = string(d)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		c.ID,
		c.OwnerID,
		c.Name,
		filter,
		c.MinSubmissionsPerDay,
		c.UniqueProblemConstraint,
		c.PenaltyAmount,
		c.StartDate,
		c.EndDate,
		c.Status,
		c.Visibility,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert challenge: %w", err)
	}
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id uuid.UUID) (domain.Challenge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("challenge %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("failed to query challenge: %w", err)
	}
	return c, nil
}

func (s *Store) ListEvaluableChallenges(ctx context.Context, day domain.Day) ([]domain.Challenge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges
		WHERE status = 'ACTIVE' AND $1 BETWEEN start_date AND end_date
		ORDER BY created_at
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluable challenges: %w", err)
	}
	defer rows.Close()

	var res []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	return res, nil
}
