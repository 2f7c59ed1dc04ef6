package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/streak"
)

const resultColumns = `challenge_id, member_id, date, completed, submissions_count,
	problems_solved, evaluated_at, metadata`

func scanResult(row rowScanner) (domain.DailyResult, error) {
	var r domain.DailyResult
	err := row.Scan(
		&r.ChallengeID,
		&r.MemberID,
		&r.Date,
		&r.Completed,
		&r.SubmissionsCount,
		&r.ProblemsSolved,
		&r.EvaluatedAt,
		&r.Metadata,
	)
	if r.ProblemsSolved == nil {
		r.ProblemsSolved = []string{}
	}
	return r, err
}

func collectResults(rows pgx.Rows) ([]domain.DailyResult, error) {
	defer rows.Close()
	var res []domain.DailyResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return res, nil
}

func (s *Store) GetResult(ctx context.Context, key domain.ResultKey) (*domain.DailyResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+resultColumns+` FROM daily_results
		WHERE challenge_id = $1 AND member_id = $2 AND date = $3
	`, key.ChallengeID, key.MemberID, key.Date)
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result %s: %w", key, err)
	}
	return &r, nil
}

// RecordPending inserts a pending result. A pending row only gets its
// metadata refreshed and a resolved row is left alone.
func (s *Store) RecordPending(ctx context.Context, r domain.DailyResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_results (`+resultColumns+`)
		VALUES ($1, $2, $3, NULL, 0, '{}', NULL, $4)
		ON CONFLICT (challenge_id, member_id, date) DO UPDATE
		SET metadata = EXCLUDED.metadata
		WHERE daily_results.completed IS NULL
	`, r.ChallengeID, r.MemberID, r.Date, r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to record pending result: %w", err)
	}
	return nil
}

// RecordOutcome writes the final result, the streak update and the
// penalty entry in one transaction. A day resolved after later days is
// backfilled into the streak. The membership row lock serializes
// concurrent outcomes of the same member.
func (s *Store) RecordOutcome(ctx context.Context, o domain.Outcome) (domain.RecordedOutcome, error) {
	key := o.Result.Key()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.RecordedOutcome{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM challenge_members
		WHERE id = $1 AND challenge_id = $2
		FOR UPDATE
	`, key.MemberID, key.ChallengeID)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecordedOutcome{}, fmt.Errorf("membership %s: %w", key.MemberID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RecordedOutcome{}, fmt.Errorf("failed to lock membership: %w", err)
	}

	var completed *bool
	err = tx.QueryRow(ctx, `
		SELECT completed FROM daily_results
		WHERE challenge_id = $1 AND member_id = $2 AND date = $3
	`, key.ChallengeID, key.MemberID, key.Date).Scan(&completed)
	switch {
	case err == nil && completed != nil:
		return domain.RecordedOutcome{AlreadyResolved: true, Membership: m}, nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return domain.RecordedOutcome{}, fmt.Errorf("failed to query result: %w", err)
	}

	r := o.Result
	solved := r.ProblemsSolved
	if solved == nil {
		solved = []string{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO daily_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (challenge_id, member_id, date) DO UPDATE
		SET completed = EXCLUDED.completed,
			submissions_count = EXCLUDED.submissions_count,
			problems_solved = EXCLUDED.problems_solved,
			evaluated_at = EXCLUDED.evaluated_at,
			metadata = EXCLUDED.metadata
	`, r.ChallengeID, r.MemberID, r.Date, r.Completed, r.SubmissionsCount, solved, r.EvaluatedAt, r.Metadata)
	if err != nil {
		return domain.RecordedOutcome{}, fmt.Errorf("failed to write result: %w", err)
	}

	var later streak.Later
	err = tx.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE completed), coalesce(bool_or(NOT completed), false)
		FROM daily_results
		WHERE member_id = $1 AND date > $2 AND completed IS NOT NULL
	`, key.MemberID, key.Date).Scan(&later.Completed, &later.Failed)
	if err != nil {
		return domain.RecordedOutcome{}, fmt.Errorf("failed to query later results: %w", err)
	}

	tr := streak.Backfill(streak.State{Current: m.CurrentStreak, Longest: m.LongestStreak}, r.Passed(), later)
	m.CurrentStreak = tr.Next.Current
	m.LongestStreak = tr.Next.Longest

	if p := o.Penalty; p != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO penalty_ledger (id, member_id, amount, reason, date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.MemberID, p.Amount, p.Reason, p.Date, p.CreatedAt)
		if err != nil {
			return domain.RecordedOutcome{}, fmt.Errorf("failed to insert penalty: %w", err)
		}
		m.TotalPenalties += p.Amount
	}

	_, err = tx.Exec(ctx, `
		UPDATE challenge_members
		SET current_streak = $1, longest_streak = $2, total_penalties = $3
		WHERE id = $4
	`, m.CurrentStreak, m.LongestStreak, m.TotalPenalties, m.ID)
	if err != nil {
		return domain.RecordedOutcome{}, fmt.Errorf("failed to update membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RecordedOutcome{}, fmt.Errorf("failed to commit outcome: %w", err)
	}
	return domain.RecordedOutcome{Streak: tr, Membership: m}, nil
}

func (s *Store) ListPendingResults(ctx context.Context, from, to domain.Day) ([]domain.DailyResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+resultColumns+` FROM daily_results
		WHERE completed IS NULL AND date BETWEEN $1 AND $2
		ORDER BY date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending results: %w", err)
	}
	return collectResults(rows)
}

func (s *Store) ListCompletedResults(ctx context.Context, from, to domain.Day) ([]domain.DailyResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+resultColumns+` FROM daily_results
		WHERE completed AND date BETWEEN $1 AND $2
		ORDER BY date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed results: %w", err)
	}
	return collectResults(rows)
}

func (s *Store) ListChallengeResults(ctx context.Context, challengeID uuid.UUID, day domain.Day) ([]domain.DailyResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+resultColumns+` FROM daily_results
		WHERE challenge_id = $1 AND date = $2
		ORDER BY member_id
	`, challengeID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge results: %w", err)
	}
	return collectResults(rows)
}

func (s *Store) ListMemberResults(ctx context.Context, memberID uuid.UUID, limit int) ([]domain.DailyResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+resultColumns+` FROM daily_results
		WHERE member_id = $1
		ORDER BY date DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query member results: %w", err)
	}
	return collectResults(rows)
}

func (s *Store) ListPenalties(ctx context.Context, memberID uuid.UUID) ([]domain.PenaltyEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, member_id, amount, reason, date, created_at
		FROM penalty_ledger WHERE member_id = $1
		ORDER BY date
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query penalties: %w", err)
	}
	defer rows.Close()

	var res []domain.PenaltyEntry
	for rows.Next() {
		var p domain.PenaltyEntry
		if err := rows.Scan(&p.ID, &p.MemberID, &p.Amount, &p.Reason, &p.Date, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan penalty: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating penalties: %w", err)
	}
	return res, nil
}
