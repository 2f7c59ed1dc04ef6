package pgstore_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/golangmigrator"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/pgstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newDB returns a connection pool to a unique and isolated test database,
// fully migrated and ready for testing
func newDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	host := os.Getenv("PGTEST_HOST")
	if host == "" {
		t.Skip("PGTEST_HOST not set")
	}
	ctx := context.Background()
	conf := pgtestdb.Config{
		DriverName: "pgx",
		User:       envOr("PGTEST_USER", "streaks"),
		Password:   envOr("PGTEST_PASSWORD", "streaks"),
		Host:       host,
		Port:       envOr("PGTEST_PORT", "5433"),
		Options:    "sslmode=disable",
	}
	gm := golangmigrator.New("../migrate")
	config := pgtestdb.Custom(t, conf, gm)

	pool, err := pgxpool.New(ctx, config.URL())
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
	})
	return pool
}

type fixture struct {
	store *pgstore.Store
	c     domain.Challenge
	u     domain.User
	m     domain.Membership
	day   domain.Day
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := t.Context()
	store := pgstore.New(newDB(t))
	day := domain.NewDay(2024, 5, 10)

	owner := domain.User{ID: uuid.New(), Username: "owner", Email: "owner@example.com"}
	require.NoError(t, store.CreateUser(ctx, owner))
	lc := "alice_lc"
	u := domain.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", LeetcodeUsername: &lc}
	require.NoError(t, store.CreateUser(ctx, u))

	c := domain.Challenge{
		ID:                   uuid.New(),
		OwnerID:              owner.ID,
		Name:                 "may grind",
		DifficultyFilter:     []domain.Difficulty{domain.DifficultyMedium},
		MinSubmissionsPerDay: 1,
		PenaltyAmount:        10,
		StartDate:            day.AddDays(-5),
		EndDate:              day.AddDays(5),
		Status:               domain.StatusActive,
		Visibility:           domain.VisibilityPublic,
		CreatedAt:            time.Now().UTC(),
	}
	require.NoError(t, store.CreateChallenge(ctx, c))

	m := domain.Membership{ID: uuid.New(), ChallengeID: c.ID, UserID: u.ID, CurrentStreak: 2, LongestStreak: 4, IsActive: true, JoinedAt: time.Now().UTC()}
	require.NoError(t, store.CreateMembership(ctx, m))
	return fixture{store: store, c: c, u: u, m: m, day: day}
}

func (f fixture) outcome(completed bool) domain.Outcome {
	now := time.Now().UTC()
	o := domain.Outcome{Result: domain.DailyResult{
		ChallengeID:      f.c.ID,
		MemberID:         f.m.ID,
		Date:             f.day,
		Completed:        &completed,
		SubmissionsCount: 1,
		ProblemsSolved:   []string{"add-two-numbers"},
		EvaluatedAt:      &now,
		Metadata:         map[string]any{"authenticated": false},
	}}
	if !completed {
		o.Result.SubmissionsCount = 0
		o.Result.ProblemsSolved = []string{}
		o.Penalty = &domain.PenaltyEntry{ID: uuid.New(), MemberID: f.m.ID, Amount: 10, Reason: "missed", Date: f.day, CreatedAt: now}
	}
	return o
}

func TestChallengeRoundTrip(t *testing.T) {
	f := newFixture(t)
	got, err := f.store.GetChallenge(t.Context(), f.c.ID)
	require.NoError(t, err)
	assert.Equal(t, f.c.DifficultyFilter, got.DifficultyFilter)
	assert.Equal(t, f.c.StartDate, got.StartDate)
	assert.Equal(t, f.c.EndDate, got.EndDate)

	list, err := f.store.ListEvaluableChallenges(t.Context(), f.day)
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = f.store.ListEvaluableChallenges(t.Context(), f.day.AddDays(6))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.store.GetChallenge(t.Context(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordOutcomeOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	rec, err := f.store.RecordOutcome(ctx, f.outcome(false))
	require.NoError(t, err)
	assert.False(t, rec.AlreadyResolved)
	assert.Equal(t, 2, rec.Streak.Broken)
	assert.Equal(t, int64(10), rec.Membership.TotalPenalties)

	rec, err = f.store.RecordOutcome(ctx, f.outcome(true))
	require.NoError(t, err)
	assert.True(t, rec.AlreadyResolved)

	m, err := f.store.GetMembership(ctx, f.m.ID)
	require.NoError(t, err)
	assert.Zero(t, m.CurrentStreak)
	assert.Equal(t, 4, m.LongestStreak)
	assert.Equal(t, int64(10), m.TotalPenalties)

	penalties, err := f.store.ListPenalties(ctx, f.m.ID)
	require.NoError(t, err)
	assert.Len(t, penalties, 1)
}

func TestConcurrentRecordOutcomeAppliesOnce(t *testing.T) {
	f := newFixture(t)
	var applied atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.store.RecordOutcome(context.Background(), f.outcome(true))
			if err == nil && !rec.AlreadyResolved {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, applied.Load())

	m, err := f.store.GetMembership(t.Context(), f.m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, m.CurrentStreak)
}

func TestPendingThenResolved(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	key := domain.ResultKey{ChallengeID: f.c.ID, MemberID: f.m.ID, Date: f.day}

	pending := domain.DailyResult{ChallengeID: f.c.ID, MemberID: f.m.ID, Date: f.day, Metadata: map[string]any{"error_kind": "timeout"}}
	require.NoError(t, f.store.RecordPending(ctx, pending))
	pending.Metadata = map[string]any{"error_kind": "rate_limited"}
	require.NoError(t, f.store.RecordPending(ctx, pending))

	got, err := f.store.GetResult(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Pending())
	assert.Equal(t, "rate_limited", got.Metadata["error_kind"])

	list, err := f.store.ListPendingResults(ctx, f.day.AddDays(-1), f.day)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.store.RecordOutcome(ctx, f.outcome(true))
	require.NoError(t, err)
	require.NoError(t, f.store.RecordPending(ctx, pending))
	got, err = f.store.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.Passed(), "pending write must not overwrite a resolved day")
	assert.Equal(t, []string{"add-two-numbers"}, got.ProblemsSolved)
}

func TestRecordOutcomeBackfillsOlderDay(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	on := func(offset int, completed bool) domain.Outcome {
		o := f.outcome(completed)
		o.Result.Date = f.day.AddDays(offset)
		if o.Penalty != nil {
			o.Penalty.Date = o.Result.Date
		}
		return o
	}

	for _, offset := range []int{1, 2, 3} {
		_, err := f.store.RecordOutcome(ctx, on(offset, true))
		require.NoError(t, err)
	}
	rec, err := f.store.RecordOutcome(ctx, on(0, false))
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Membership.CurrentStreak)
	assert.Equal(t, 5, rec.Streak.Broken)

	// a pass behind that failure leaves the running streak alone
	_, err = f.store.RecordOutcome(ctx, on(-1, true))
	require.NoError(t, err)

	m, err := f.store.GetMembership(ctx, f.m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, m.CurrentStreak)
	assert.Equal(t, 5, m.LongestStreak)
	assert.Equal(t, int64(10), m.TotalPenalties)
}

func TestRedeemInviteNeverExceedsMaxUses(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	require.NoError(t, f.store.CreateInvite(ctx, domain.InviteCode{Code: "TWO", ChallengeID: f.c.ID, MaxUses: 2, CreatedAt: time.Now()}))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := range 6 {
		u := domain.User{ID: uuid.New(), Username: "u" + uuid.NewString()[:8], Email: uuid.NewString() + "@example.com"}
		require.NoError(t, f.store.CreateUser(ctx, u), "user %d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := domain.Membership{ID: uuid.New(), UserID: u.ID, IsActive: true, JoinedAt: time.Now()}
			if _, err := f.store.RedeemInvite(context.Background(), "TWO", m, time.Now()); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 2, ok.Load())

	ic, err := f.store.GetInvite(ctx, "TWO")
	require.NoError(t, err)
	assert.Equal(t, 2, ic.UsedCount)

	_, err = f.store.RedeemInvite(ctx, "NOPE", domain.Membership{ID: uuid.New(), UserID: f.u.ID}, time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedeemInviteRollsBackForExistingMember(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	require.NoError(t, f.store.CreateInvite(ctx, domain.InviteCode{Code: "ONE", ChallengeID: f.c.ID, MaxUses: 1, CreatedAt: time.Now()}))

	_, err := f.store.RedeemInvite(ctx, "ONE", domain.Membership{ID: uuid.New(), UserID: f.u.ID, IsActive: true, JoinedAt: time.Now()}, time.Now())
	require.ErrorIs(t, err, domain.ErrAlreadyMember)

	ic, err := f.store.GetInvite(ctx, "ONE")
	require.NoError(t, err)
	assert.Zero(t, ic.UsedCount)
}

func TestReminderCandidatesAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	rcs, err := f.store.ListReminderCandidates(ctx, f.day)
	require.NoError(t, err)
	require.Len(t, rcs, 1)
	assert.Equal(t, f.u.ID, rcs[0].User.ID)
	assert.Equal(t, f.c.DifficultyFilter, rcs[0].Challenge.DifficultyFilter)

	_, err = f.store.RecordOutcome(ctx, f.outcome(true))
	require.NoError(t, err)
	rcs, err = f.store.ListReminderCandidates(ctx, f.day)
	require.NoError(t, err)
	assert.Empty(t, rcs)

	daily, err := f.store.DailyStats(ctx, f.day, f.day)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 1, daily[0].Passed)

	stats, err := f.store.ChallengeStats(ctx, f.day, f.day)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, f.c.ID, stats[0].ChallengeID)
	assert.Equal(t, 1, stats[0].Total)
}

func TestWeeklySummaryQueries(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	details, err := f.store.ListActiveMemberDetails(ctx)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, f.m.ID, details[0].Membership.ID)
	assert.Equal(t, f.c.Name, details[0].Challenge.Name)
	assert.Equal(t, f.u.Email, details[0].User.Email)

	_, err = f.store.RecordOutcome(ctx, f.outcome(true))
	require.NoError(t, err)
	failed := f.outcome(false)
	failed.Result.Date = f.day.AddDays(-1)
	failed.Penalty.Date = failed.Result.Date
	_, err = f.store.RecordOutcome(ctx, failed)
	require.NoError(t, err)

	got, err := f.store.ListCompletedResults(ctx, f.day.AddDays(-6), f.day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.day, got[0].Date)
	assert.Equal(t, 1, got[0].SubmissionsCount)
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := domain.LeetcodeSession{ID: uuid.New(), UserID: f.u.ID, Sealed: "a", IsActive: true, LastUsedAt: now, CreatedAt: now}
	require.NoError(t, f.store.ReplaceSession(ctx, first))
	second := first
	second.ID = uuid.New()
	second.Sealed = "b"
	second.CreatedAt = now.Add(time.Second)
	require.NoError(t, f.store.ReplaceSession(ctx, second))

	got, err := f.store.ActiveSession(ctx, f.u.ID, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Sealed)

	require.NoError(t, f.store.TouchSession(ctx, got.ID, now.Add(time.Minute)))
	require.NoError(t, f.store.DeactivateSessions(ctx, f.u.ID))
	got, err = f.store.ActiveSession(ctx, f.u.ID, now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProblemUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	got, err := f.store.GetProblem(ctx, "two-sum")
	require.NoError(t, err)
	assert.Nil(t, got)

	rate := 0.51
	p := domain.ProblemMetadata{TitleSlug: "two-sum", Title: "Two Sum", Difficulty: domain.DifficultyEasy, TopicTags: []string{"Array"}, AcRate: &rate, LastFetchedAt: time.Now().UTC()}
	require.NoError(t, f.store.UpsertProblem(ctx, p))
	p.TopicTags = []string{"Array", "Hash Table"}
	require.NoError(t, f.store.UpsertProblem(ctx, p))

	got, err = f.store.GetProblem(ctx, "two-sum")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DifficultyEasy, got.Difficulty)
	assert.Equal(t, []string{"Array", "Hash Table"}, got.TopicTags)
}

func TestJobLedger(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	now := time.Now().UTC()
	rec := jobqueue.Record{ID: "member-x-2024-05-10", Kind: jobqueue.KindMemberEvaluation, Payload: []byte(`{"a":1}`), CreatedAt: now}

	ok, err := f.store.ClaimJob(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.store.ClaimJob(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate id must not be claimed")

	require.NoError(t, f.store.UpdateJob(ctx, rec.ID, jobqueue.StateFailed, 3, "boom", now))
	got, err := f.store.GetJob(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, jobqueue.StateFailed, got.State)
	assert.Equal(t, "boom", got.LastError)

	ok, err = f.store.ClaimJob(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok, "failed jobs can be reclaimed")

	require.NoError(t, f.store.UpdateJob(ctx, rec.ID, jobqueue.StateCompleted, 1, "", now.Add(-48*time.Hour)))
	n, err := f.store.PurgeJobs(ctx, jobqueue.StateCompleted, now.Add(-24*time.Hour), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = f.store.GetJob(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
