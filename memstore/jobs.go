package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/programme-lv/streaks/jobqueue"
	"github.com/puzpuzpuz/xsync/v3"
)

// jobLedger is lock free for reads; claims and purges serialize on mu so
// that insert-if-absent and reclaim stay atomic.
type jobLedger struct {
	mu   sync.Mutex
	jobs *xsync.MapOf[string, jobqueue.Record]
}

func newJobLedger() *jobLedger {
	return &jobLedger{jobs: xsync.NewMapOf[string, jobqueue.Record]()}
}

func (s *Store) ClaimJob(ctx context.Context, rec jobqueue.Record) (bool, error) {
	l := s.jobs
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.jobs.Load(rec.ID)
	if ok && existing.State != jobqueue.StateFailed {
		return false, nil
	}
	if ok {
		rec.CreatedAt = existing.CreatedAt
	}
	rec.State = jobqueue.StateQueued
	rec.Attempts = 0
	l.jobs.Store(rec.ID, rec)
	return true, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobqueue.Record, error) {
	rec, ok := s.jobs.jobs.Load(id)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) UpdateJob(ctx context.Context, id string, state jobqueue.State, attempts int, lastErr string, at time.Time) error {
	s.jobs.jobs.Compute(id, func(rec jobqueue.Record, loaded bool) (jobqueue.Record, bool) {
		if !loaded {
			return rec, true
		}
		rec.State = state
		rec.Attempts = attempts
		rec.LastError = lastErr
		rec.UpdatedAt = at
		return rec, false
	})
	return nil
}

func (s *Store) PurgeJobs(ctx context.Context, state jobqueue.State, olderThan time.Time, keep int) (int, error) {
	l := s.jobs
	l.mu.Lock()
	defer l.mu.Unlock()

	var matching []jobqueue.Record
	l.jobs.Range(func(id string, rec jobqueue.Record) bool {
		if rec.State == state {
			matching = append(matching, rec)
		}
		return true
	})
	sort.Slice(matching, func(i, j int) bool { return matching[i].UpdatedAt.After(matching[j].UpdatedAt) })

	purged := 0
	for i, rec := range matching {
		if i >= keep || rec.UpdatedAt.Before(olderThan) {
			l.jobs.Delete(rec.ID)
			purged++
		}
	}
	return purged, nil
}

// JobCount is the number of ledger records in state.
func (s *Store) JobCount(state jobqueue.State) int {
	n := 0
	s.jobs.jobs.Range(func(id string, rec jobqueue.Record) bool {
		if rec.State == state {
			n++
		}
		return true
	})
	return n
}
