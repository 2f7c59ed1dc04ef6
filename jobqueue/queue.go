package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

type Retention struct {
	CompletedAge  time.Duration
	CompletedKeep int
	FailedAge     time.Duration
	FailedKeep    int
}

func DefaultRetention() Retention {
	return Retention{
		CompletedAge:  24 * time.Hour,
		CompletedKeep: 1000,
		FailedAge:     7 * 24 * time.Hour,
		FailedKeep:    5000,
	}
}

type Queue struct {
	broker    Broker
	ledger    Ledger
	retention Retention
	log       *slog.Logger
	now       func() time.Time
}

func NewQueue(broker Broker, ledger Ledger) *Queue {
	return &Queue{
		broker:    broker,
		ledger:    ledger,
		retention: DefaultRetention(),
		log:       slog.Default().With("module", "jobqueue"),
		now:       time.Now,
	}
}

// Enqueue publishes a job under id unless that id was already claimed.
// A duplicate returns false and no error.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, id string, payload any) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	now := q.now().UTC()
	claimed, err := q.ledger.ClaimJob(ctx, Record{
		ID:        id,
		Kind:      kind,
		Payload:   raw,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	if !claimed {
		q.log.Debug("duplicate job suppressed", "job_id", id)
		return false, nil
	}

	err = q.broker.Publish(ctx, Job{ID: id, Kind: kind, Payload: raw, Attempt: 1}, 0)
	if err != nil {
		// leave it reclaimable
		if uerr := q.ledger.UpdateJob(ctx, id, StateFailed, 0, err.Error(), q.now().UTC()); uerr != nil {
			q.log.Error("failed to release job claim", "job_id", id, "error", uerr)
		}
		return false, fmt.Errorf("failed to publish job %s: %w", id, err)
	}
	return true, nil
}

// Purge applies the retention window to finished jobs.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	now := q.now().UTC()
	done, err := q.ledger.PurgeJobs(ctx, StateCompleted, now.Add(-q.retention.CompletedAge), q.retention.CompletedKeep)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	failed, err := q.ledger.PurgeJobs(ctx, StateFailed, now.Add(-q.retention.FailedAge), q.retention.FailedKeep)
	if err != nil {
		return done, fmt.Errorf("failed to purge failed jobs: %w", err)
	}
	if done+failed > 0 {
		q.log.Info("purged jobs", "completed", done, "failed", failed)
	}
	return done + failed, nil
}

func (q *Queue) Status(ctx context.Context, id string) (*Record, error) {
	return q.ledger.GetJob(ctx, id)
}
