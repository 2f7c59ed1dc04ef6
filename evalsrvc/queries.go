package evalsrvc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/problemcache"
	"github.com/programme-lv/streaks/srvcerror"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
	topFailingCount     = 5
)

type AnalyticsQuery struct {
	Days int
}

type ChallengeRate struct {
	domain.ChallengeStats
	FailRate float64 `json:"fail_rate"`
}

type Analytics struct {
	From       domain.Day        `json:"from"`
	To         domain.Day        `json:"to"`
	Daily      []domain.DayStats `json:"daily"`
	Challenges []ChallengeRate   `json:"challenges"`
	TopFailing []ChallengeRate   `json:"top_failing"`
}

// GetAnalytics aggregates results of the last q.Days days, today included.
func (s *EvalSrvc) GetAnalytics(ctx context.Context, q AnalyticsQuery) (Analytics, error) {
	days := q.Days
	if days <= 0 {
		days = 30
	}
	to := domain.DayOf(s.now())
	from := to.AddDays(-(days - 1))

	daily, err := s.store.DailyStats(ctx, from, to)
	if err != nil {
		return Analytics{}, fmt.Errorf("failed to aggregate daily stats: %w", err)
	}
	stats, err := s.store.ChallengeStats(ctx, from, to)
	if err != nil {
		return Analytics{}, fmt.Errorf("failed to aggregate challenge stats: %w", err)
	}

	rates := make([]ChallengeRate, len(stats))
	for i, st := range stats {
		rates[i] = ChallengeRate{ChallengeStats: st, FailRate: st.FailRate()}
	}
	top := append([]ChallengeRate(nil), rates...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].FailRate > top[j].FailRate })
	if len(top) > topFailingCount {
		top = top[:topFailingCount]
	}

	if daily == nil {
		daily = []domain.DayStats{}
	}
	return Analytics{From: from, To: to, Daily: daily, Challenges: rates, TopFailing: top}, nil
}

type ChallengeResultsQuery struct {
	ChallengeID uuid.UUID
	Date        domain.Day
}

func (s *EvalSrvc) GetChallengeResults(ctx context.Context, q ChallengeResultsQuery) ([]domain.DailyResult, error) {
	if _, err := s.store.GetChallenge(ctx, q.ChallengeID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrChallengeNotFound()
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	day := q.Date
	if day.IsZero() {
		day = domain.DayOf(s.now())
	}
	res, err := s.store.ListChallengeResults(ctx, q.ChallengeID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenge results: %w", err)
	}
	return res, nil
}

type MemberResultsQuery struct {
	MemberID    uuid.UUID
	RequesterID uuid.UUID
	IsAdmin     bool
	Limit       int
}

// GetMemberResults returns the newest results first. Only the member's own
// user and admins may read them.
func (s *EvalSrvc) GetMemberResults(ctx context.Context, q MemberResultsQuery) ([]domain.DailyResult, error) {
	m, err := s.store.GetMembership(ctx, q.MemberID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrMemberNotFound()
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if !q.IsAdmin && m.UserID != q.RequesterID {
		return nil, srvcerror.ErrForbidden()
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	res, err := s.store.ListMemberResults(ctx, q.MemberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list member results: %w", err)
	}
	return res, nil
}

// GetProblem serves problem metadata through the cache. An expired copy is
// returned with Stale set when the upstream refresh fails.
func (s *EvalSrvc) GetProblem(ctx context.Context, slug string) (problemcache.Lookup, error) {
	l, err := s.problems.Get(ctx, slug, nil)
	if err != nil {
		if lcclient.KindOf(err) == lcclient.KindNotFound {
			return problemcache.Lookup{}, ErrProblemNotFound().SetDebug(err)
		}
		return problemcache.Lookup{}, fmt.Errorf("failed to look up problem %s: %w", slug, err)
	}
	return l, nil
}
