package evalsrvc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/notify"
	"github.com/programme-lv/streaks/problemcache"
)

type Store interface {
	GetChallenge(ctx context.Context, id uuid.UUID) (domain.Challenge, error)
	ListEvaluableChallenges(ctx context.Context, day domain.Day) ([]domain.Challenge, error)
	ListActiveMemberships(ctx context.Context, challengeID uuid.UUID) ([]domain.Membership, error)
	GetMembership(ctx context.Context, id uuid.UUID) (domain.Membership, error)
	GetUser(ctx context.Context, id uuid.UUID) (domain.User, error)

	GetResult(ctx context.Context, key domain.ResultKey) (*domain.DailyResult, error)
	RecordPending(ctx context.Context, r domain.DailyResult) error
	RecordOutcome(ctx context.Context, o domain.Outcome) (domain.RecordedOutcome, error)
	ListPendingResults(ctx context.Context, from, to domain.Day) ([]domain.DailyResult, error)

	ListReminderCandidates(ctx context.Context, day domain.Day) ([]domain.ReminderCandidate, error)
	ListActiveMemberDetails(ctx context.Context) ([]domain.MemberDetail, error)
	ListCompletedResults(ctx context.Context, from, to domain.Day) ([]domain.DailyResult, error)
	ListChallengeResults(ctx context.Context, challengeID uuid.UUID, day domain.Day) ([]domain.DailyResult, error)
	ListMemberResults(ctx context.Context, memberID uuid.UUID, limit int) ([]domain.DailyResult, error)
	DailyStats(ctx context.Context, from, to domain.Day) ([]domain.DayStats, error)
	ChallengeStats(ctx context.Context, from, to domain.Day) ([]domain.ChallengeStats, error)
}

type ActivityFetcher interface {
	FetchActivity(ctx context.Context, username string, day domain.Day, sess *lcclient.Session) ([]lcclient.Activity, error)
}

type ProblemLookup interface {
	Get(ctx context.Context, slug string, sess *lcclient.Session) (problemcache.Lookup, error)
}

type SessionSource interface {
	Active(ctx context.Context, userID uuid.UUID) (*lcclient.Session, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, kind jobqueue.Kind, id string, payload any) (bool, error)
}

// Notifier must not block; notify.Dispatcher satisfies it.
type Notifier interface {
	StreakBroken(ctx context.Context, ev notify.StreakBroken)
	StreakReminder(ctx context.Context, ev notify.StreakReminder)
	WeeklySummary(ctx context.Context, ev notify.WeeklySummary)
}

type Options struct {
	// RevisitPendingDays re-enqueues pending results up to this many days
	// back on every daily trigger. Zero disables it.
	RevisitPendingDays int
	EnrichConcurrency  int
}

type EvalSrvc struct {
	store    Store
	fetcher  ActivityFetcher
	problems ProblemLookup
	sessions SessionSource
	queue    Enqueuer
	notifier Notifier
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

type Deps struct {
	Store    Store
	Fetcher  ActivityFetcher
	Problems ProblemLookup
	Sessions SessionSource
	Queue    Enqueuer
	Notifier Notifier
}

func NewEvalSrvc(deps Deps, opts Options) *EvalSrvc {
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = 4
	}
	return &EvalSrvc{
		store:    deps.Store,
		fetcher:  deps.Fetcher,
		problems: deps.Problems,
		sessions: deps.Sessions,
		queue:    deps.Queue,
		notifier: deps.Notifier,
		opts:     opts,
		log:      slog.Default().With("module", "eval"),
		now:      time.Now,
	}
}
