// Package ledger decides which penalty entries an outcome produces.
// Entries are append-only; stores add Amount to the membership total in
// the same transaction that inserts the entry.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
)

const (
	ReasonMissedRequirement = "daily requirement not met"
	ReasonNoIdentity        = "no identity configured"
)

// ForFailure returns the entry owed for a failed day, or nil when the
// challenge carries no penalty.
func ForFailure(c domain.Challenge, m domain.Membership, day domain.Day, reason string, now time.Time) *domain.PenaltyEntry {
	if c.PenaltyAmount <= 0 {
		return nil
	}
	if reason == "" {
		reason = ReasonMissedRequirement
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &domain.PenaltyEntry{
		ID:        id,
		MemberID:  m.ID,
		Amount:    c.PenaltyAmount,
		Reason:    reason,
		Date:      day,
		CreatedAt: now,
	}
}

// Total sums entries; used to reconcile cached membership totals.
func Total(entries []domain.PenaltyEntry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}
