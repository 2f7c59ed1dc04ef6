package memstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memstore.Store
	challenge domain.Challenge
	member    domain.Membership
	day       domain.Day
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s := memstore.New()
	c := domain.Challenge{
		ID:                   uuid.New(),
		Name:                 "grind",
		MinSubmissionsPerDay: 1,
		PenaltyAmount:        10,
		StartDate:            domain.NewDay(2024, 1, 1),
		EndDate:              domain.NewDay(2024, 12, 31),
		Status:               domain.StatusActive,
		Visibility:           domain.VisibilityPublic,
	}
	u := domain.User{ID: uuid.New(), Username: "alice"}
	m := domain.Membership{ID: uuid.New(), ChallengeID: c.ID, UserID: u.ID, IsActive: true, CurrentStreak: 2, LongestStreak: 4}
	s.PutChallenge(c)
	s.PutUser(u)
	s.PutMembership(m)
	return fixture{store: s, challenge: c, member: m, day: domain.NewDay(2024, 3, 1)}
}

func (f fixture) result(completed *bool) domain.DailyResult {
	now := time.Now()
	r := domain.DailyResult{ChallengeID: f.challenge.ID, MemberID: f.member.ID, Date: f.day, Completed: completed}
	if completed != nil {
		r.EvaluatedAt = &now
	}
	return r
}

func ptr[T any](v T) *T { return &v }

func TestRecordOutcomeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	penalty := &domain.PenaltyEntry{ID: uuid.New(), MemberID: f.member.ID, Amount: 10, Date: f.day}

	rec, err := f.store.RecordOutcome(ctx, domain.Outcome{Result: f.result(ptr(false)), Penalty: penalty})
	require.NoError(t, err)
	assert.False(t, rec.AlreadyResolved)
	assert.Equal(t, 2, rec.Streak.Broken)
	assert.Equal(t, int64(10), rec.Membership.TotalPenalties)

	rec, err = f.store.RecordOutcome(ctx, domain.Outcome{Result: f.result(ptr(false)), Penalty: penalty})
	require.NoError(t, err)
	assert.True(t, rec.AlreadyResolved)

	m, err := f.store.GetMembership(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.TotalPenalties)
	assert.Equal(t, 0, m.CurrentStreak)
	assert.Equal(t, 4, m.LongestStreak)

	entries, err := f.store.ListPenalties(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConcurrentRecordOutcomeAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.store.RecordOutcome(ctx, domain.Outcome{Result: f.result(ptr(true))})
			if err == nil && !rec.AlreadyResolved {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied.Load())
	m, _ := f.store.GetMembership(ctx, f.member.ID)
	assert.Equal(t, 3, m.CurrentStreak)
}

func TestPendingThenResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.RecordPending(ctx, f.result(nil)))
	require.NoError(t, f.store.RecordPending(ctx, f.result(nil)))
	got, err := f.store.GetResult(ctx, f.result(nil).Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Pending())

	m, _ := f.store.GetMembership(ctx, f.member.ID)
	assert.Equal(t, f.member.CurrentStreak, m.CurrentStreak, "pending never touches streak")

	rec, err := f.store.RecordOutcome(ctx, domain.Outcome{Result: f.result(ptr(true))})
	require.NoError(t, err)
	assert.False(t, rec.AlreadyResolved)

	// a late pending write must not regress a resolved day
	require.NoError(t, f.store.RecordPending(ctx, f.result(nil)))
	got, _ = f.store.GetResult(ctx, f.result(nil).Key())
	assert.True(t, got.Passed())
}

func TestRecordOutcomeBackfillsOlderDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	on := func(day domain.Day, completed bool) domain.Outcome {
		r := f.result(ptr(completed))
		r.Date = day
		o := domain.Outcome{Result: r}
		if !completed {
			o.Penalty = &domain.PenaltyEntry{ID: uuid.New(), MemberID: f.member.ID, Amount: 10, Date: day}
		}
		return o
	}

	for _, d := range []domain.Day{f.day.AddDays(1), f.day.AddDays(2)} {
		_, err := f.store.RecordOutcome(ctx, on(d, true))
		require.NoError(t, err)
	}

	// only the two later passes survive an older failure
	rec, err := f.store.RecordOutcome(ctx, on(f.day, false))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Membership.CurrentStreak)
	assert.Equal(t, 4, rec.Streak.Broken)

	// a failure behind another failure changes nothing but the ledger
	rec, err = f.store.RecordOutcome(ctx, on(f.day.AddDays(-1), false))
	require.NoError(t, err)
	assert.Zero(t, rec.Streak.Broken)

	m, err := f.store.GetMembership(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.CurrentStreak)
	assert.Equal(t, 4, m.LongestStreak)
	assert.Equal(t, int64(20), m.TotalPenalties)
}

func TestRedeemInviteNeverExceedsMaxUses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInvite(domain.InviteCode{Code: "JOIN", ChallengeID: f.challenge.ID, MaxUses: 3})

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := domain.Membership{ID: uuid.New(), UserID: uuid.New(), IsActive: true}
			if _, err := f.store.RedeemInvite(ctx, "JOIN", m, time.Now()); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInviteUnavailable)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), ok.Load())
	ic, err := f.store.GetInvite(ctx, "JOIN")
	require.NoError(t, err)
	assert.Equal(t, 3, ic.UsedCount)
}

func TestRedeemInviteRejectsExistingMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInvite(domain.InviteCode{Code: "JOIN", ChallengeID: f.challenge.ID, MaxUses: 3})

	_, err := f.store.RedeemInvite(ctx, "JOIN", domain.Membership{ID: uuid.New(), UserID: f.member.UserID}, time.Now())
	require.ErrorIs(t, err, domain.ErrAlreadyMember)
	ic, _ := f.store.GetInvite(ctx, "JOIN")
	assert.Equal(t, 0, ic.UsedCount)
}

func TestReminderCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.store.ListReminderCandidates(ctx, f.day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.member.ID, got[0].Membership.ID)

	_, err = f.store.RecordOutcome(ctx, domain.Outcome{Result: f.result(ptr(true))})
	require.NoError(t, err)
	got, err = f.store.ListReminderCandidates(ctx, f.day)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWeeklySummaryQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inactive := domain.Membership{ID: uuid.New(), ChallengeID: f.challenge.ID, UserID: f.member.UserID}
	f.store.PutMembership(inactive)

	details, err := f.store.ListActiveMemberDetails(ctx)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, f.member.ID, details[0].Membership.ID)
	assert.Equal(t, "grind", details[0].Challenge.Name)
	assert.Equal(t, "alice", details[0].User.Username)

	_, err = f.store.RecordOutcome(ctx, domain.Outcome{Result: f.result(ptr(true))})
	require.NoError(t, err)
	require.NoError(t, f.store.RecordPending(ctx, func() domain.DailyResult {
		r := f.result(nil)
		r.Date = f.day.AddDays(1)
		return r
	}()))

	got, err := f.store.ListCompletedResults(ctx, f.day.AddDays(-6), f.day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.day, got[0].Date)

	got, err = f.store.ListCompletedResults(ctx, f.day.AddDays(1), f.day.AddDays(7))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJobLedgerClaimAndPurge(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	now := time.Now()

	claimed, err := s.ClaimJob(ctx, jobqueue.Record{ID: "member-1-2024-01-01", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = s.ClaimJob(ctx, jobqueue.Record{ID: "member-1-2024-01-01"})
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, s.UpdateJob(ctx, "member-1-2024-01-01", jobqueue.StateFailed, 3, "boom", now))
	claimed, err = s.ClaimJob(ctx, jobqueue.Record{ID: "member-1-2024-01-01"})
	require.NoError(t, err)
	assert.True(t, claimed, "failed jobs can be reclaimed")

	for i := 0; i < 5; i++ {
		id := uuid.NewString()
		_, err := s.ClaimJob(ctx, jobqueue.Record{ID: id})
		require.NoError(t, err)
		require.NoError(t, s.UpdateJob(ctx, id, jobqueue.StateCompleted, 1, "", now.Add(-time.Duration(i)*time.Hour)))
	}
	n, err := s.PurgeJobs(ctx, jobqueue.StateCompleted, now.Add(-150*time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, s.JobCount(jobqueue.StateCompleted))
}
