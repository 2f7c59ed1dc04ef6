// Package jobqueue distributes evaluation work as keyed, retryable jobs.
//
// A job id is deterministic per entity and day. Enqueue claims the id in a
// durable ledger before publishing, so a second trigger for the same day
// publishes nothing.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/programme-lv/streaks/domain"
)

type Kind string

const (
	KindChallengeEvaluation Kind = "challenge-evaluation"
	KindMemberEvaluation    Kind = "member-evaluation"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is what travels through a Broker. Attempt starts at 1.
type Job struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

func (j Job) Decode(dst any) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return Permanent(fmt.Errorf("failed to decode %s payload: %w", j.Kind, err))
	}
	return nil
}

// Record is the ledger row of a job.
type Record struct {
	ID        string
	Kind      Kind
	Payload   json.RawMessage
	State     State
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Ledger interface {
	// ClaimJob inserts rec if its id is unseen. A failed record is
	// reclaimed so that manual recovery can rerun it. It reports whether
	// the caller now owns the id.
	ClaimJob(ctx context.Context, rec Record) (bool, error)
	GetJob(ctx context.Context, id string) (*Record, error)
	UpdateJob(ctx context.Context, id string, state State, attempts int, lastErr string, at time.Time) error
	// PurgeJobs deletes records in state updated before olderThan and
	// everything past the newest keep records.
	PurgeJobs(ctx context.Context, state State, olderThan time.Time, keep int) (int, error)
}

type Delivery struct {
	Job    Job
	handle string
}

type Broker interface {
	Publish(ctx context.Context, job Job, delay time.Duration) error
	// Receive waits briefly and returns whatever arrived, possibly nothing.
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}

func ChallengeJobID(challengeID fmt.Stringer, day domain.Day) string {
	return fmt.Sprintf("challenge-%s-%s", challengeID, day)
}

func MemberJobID(memberID fmt.Stringer, day domain.Day) string {
	return fmt.Sprintf("member-%s-%s", memberID, day)
}
