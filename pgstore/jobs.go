package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/jobqueue"
)

// ClaimJob inserts the record unless its id is taken by a job that has not
// failed. Failed records are reset to queued.
func (s *Store) ClaimJob(ctx context.Context, rec jobqueue.Record) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, payload, state, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, 'queued', 0, '', $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			state = 'queued',
			attempts = 0,
			last_error = '',
			updated_at = EXCLUDED.updated_at
		WHERE jobs.state = 'failed'
	`, rec.ID, rec.Kind, rec.Payload, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobqueue.Record, error) {
	var rec jobqueue.Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, payload, state, attempts, last_error, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(
		&rec.ID,
		&rec.Kind,
		&rec.Payload,
		&rec.State,
		&rec.Attempts,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) UpdateJob(ctx context.Context, id string, state jobqueue.State, attempts int, lastErr string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, attempts = $2, last_error = $3, updated_at = $4
		WHERE id = $5
	`, state, attempts, lastErr, at, id)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil
}

func (s *Store) PurgeJobs(ctx context.Context, state jobqueue.State, olderThan time.Time, keep int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH ranked AS (
			SELECT id, updated_at, row_number() OVER (ORDER BY updated_at DESC) AS rn
			FROM jobs WHERE state = $1
		)
		DELETE FROM jobs
		WHERE id IN (SELECT id FROM ranked WHERE rn > $3 OR updated_at < $2)
	`, state, olderThan, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s jobs: %w", state, err)
	}
	return int(tag.RowsAffected()), nil
}
