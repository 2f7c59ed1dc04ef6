package evalsrvc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/memstore"
	"github.com/programme-lv/streaks/notify"
	"github.com/programme-lv/streaks/problemcache"
)

type fakeLeetcode struct {
	mu    sync.Mutex
	acts  map[string][]string
	errs  map[string]error
	calls map[string]int
}

func newFakeLeetcode() *fakeLeetcode {
	return &fakeLeetcode{acts: map[string][]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeLeetcode) set(username string, slugs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acts[username] = slugs
	delete(f.errs, username)
}

func (f *fakeLeetcode) fail(username string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[username] = err
}

func (f *fakeLeetcode) callCount(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[username]
}

func (f *fakeLeetcode) FetchActivity(ctx context.Context, username string, day domain.Day, sess *lcclient.Session) ([]lcclient.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[username]++
	if err := f.errs[username]; err != nil {
		return nil, err
	}
	var res []lcclient.Activity
	for i, slug := range f.acts[username] {
		res = append(res, lcclient.Activity{ID: slug, TitleSlug: slug, Timestamp: day.Start().Add(time.Duration(i) * time.Minute)})
	}
	return res, nil
}

type fakeProblems map[string]domain.Difficulty

func (f fakeProblems) Get(ctx context.Context, slug string, sess *lcclient.Session) (problemcache.Lookup, error) {
	d, ok := f[slug]
	if !ok {
		return problemcache.Lookup{}, &lcclient.Error{Kind: lcclient.KindNotFound, Op: "fetch problem"}
	}
	return problemcache.Lookup{Problem: domain.ProblemMetadata{TitleSlug: slug, Difficulty: d}}, nil
}

type noSessions struct{}

func (noSessions) Active(ctx context.Context, userID uuid.UUID) (*lcclient.Session, error) {
	return nil, nil
}

var problems = fakeProblems{
	"two-sum":         domain.DifficultyEasy,
	"add-two-numbers": domain.DifficultyMedium,
	"median-arrays":   domain.DifficultyHard,
}

type env struct {
	store    *memstore.Store
	lc       *fakeLeetcode
	broker   *jobqueue.MemBroker
	queue    *jobqueue.Queue
	recorder *notify.Recorder
	disp     *notify.Dispatcher
	srvc     *evalsrvc.EvalSrvc
	day      domain.Day
}

func newEnv(t *testing.T, opts evalsrvc.Options) *env {
	t.Helper()
	return newEnvWithProblems(t, opts, problems)
}

func newEnvWithProblems(t *testing.T, opts evalsrvc.Options, lookup evalsrvc.ProblemLookup) *env {
	t.Helper()
	store := memstore.New()
	broker := jobqueue.NewMemBroker()
	t.Cleanup(broker.Close)
	queue := jobqueue.NewQueue(broker, store)
	rec := notify.NewRecorder()
	disp := notify.NewDispatcher(rec)
	lc := newFakeLeetcode()
	srvc := evalsrvc.NewEvalSrvc(evalsrvc.Deps{
		Store:    store,
		Fetcher:  lc,
		Problems: lookup,
		Sessions: noSessions{},
		Queue:    queue,
		Notifier: disp,
	}, opts)
	return &env{
		store:    store,
		lc:       lc,
		broker:   broker,
		queue:    queue,
		recorder: rec,
		disp:     disp,
		srvc:     srvc,
		day:      domain.Today(),
	}
}

func (e *env) challenge(mutate func(*domain.Challenge)) domain.Challenge {
	c := domain.Challenge{
		ID:                   uuid.New(),
		OwnerID:              uuid.New(),
		Name:                 "daily grind",
		MinSubmissionsPerDay: 1,
		StartDate:            e.day.AddDays(-10),
		EndDate:              e.day.AddDays(10),
		Status:               domain.StatusActive,
		Visibility:           domain.VisibilityPublic,
		CreatedAt:            time.Now(),
	}
	if mutate != nil {
		mutate(&c)
	}
	e.store.PutChallenge(c)
	return c
}

func (e *env) member(c domain.Challenge, leetcodeUsername string, streak int) (domain.Membership, domain.User) {
	u := domain.User{ID: uuid.New(), Username: "user-" + leetcodeUsername, Email: leetcodeUsername + "@example.com"}
	if leetcodeUsername != "" {
		name := leetcodeUsername
		u.LeetcodeUsername = &name
	}
	m := domain.Membership{
		ID:            uuid.New(),
		ChallengeID:   c.ID,
		UserID:        u.ID,
		CurrentStreak: streak,
		LongestStreak: streak,
		IsActive:      true,
		JoinedAt:      time.Now(),
	}
	e.store.PutUser(u)
	e.store.PutMembership(m)
	return m, u
}

func (e *env) runWorker(t *testing.T) {
	t.Helper()
	w := jobqueue.NewWorker(e.broker, e.store, jobqueue.WorkerOpts{
		Concurrency: 4,
		JobsPerSec:  1000,
		Retry:       jobqueue.RetryPolicy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, MaxAttempts: 3},
	})
	e.srvc.RegisterHandlers(w)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// flakyProblems is an upstream problem source that rate limits every slug
// it does not know yet.
type flakyProblems struct {
	mu    sync.Mutex
	known map[string]domain.Difficulty
}

func (f *flakyProblems) add(slug string, d domain.Difficulty) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[slug] = d
}

func (f *flakyProblems) FetchProblem(ctx context.Context, slug string, sess *lcclient.Session) (domain.ProblemMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.known[slug]
	if !ok {
		return domain.ProblemMetadata{}, &lcclient.Error{Kind: lcclient.KindRateLimited, Op: "questionData"}
	}
	return domain.ProblemMetadata{TitleSlug: slug, Difficulty: d, LastFetchedAt: time.Now()}, nil
}

func newFlakyEnv(t *testing.T) (*env, *flakyProblems) {
	t.Helper()
	upstream := &flakyProblems{known: map[string]domain.Difficulty{}}
	store := memstore.New()
	e := newEnvWithProblems(t, evalsrvc.Options{}, problemcache.New(store, upstream, problemcache.DefaultOptions()))
	return e, upstream
}
