package evalsrvc

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/notify"
)

const summaryDays = 7

// SendWeeklySummaries sends every user with an active membership a digest
// of the seven days ending on day. Totals span all active memberships;
// the per-challenge lines only cover active challenges.
func (s *EvalSrvc) SendWeeklySummaries(ctx context.Context, day domain.Day) (int, error) {
	if day.IsZero() {
		day = domain.DayOf(s.now())
	}
	from := day.AddDays(-(summaryDays - 1))

	members, err := s.store.ListActiveMemberDetails(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active members: %w", err)
	}
	results, err := s.store.ListCompletedResults(ctx, from, day)
	if err != nil {
		return 0, fmt.Errorf("failed to list completed results: %w", err)
	}
	completed := make(map[uuid.UUID][]domain.DailyResult)
	for _, r := range results {
		completed[r.MemberID] = append(completed[r.MemberID], r)
	}

	var order []uuid.UUID
	summaries := make(map[uuid.UUID]*notify.WeeklySummary)
	days := make(map[uuid.UUID]map[string]struct{})
	ranks := make(map[uuid.UUID]map[uuid.UUID]int)
	for _, md := range members {
		u, m := md.User, md.Membership
		sum, ok := summaries[u.ID]
		if !ok {
			sum = &notify.WeeklySummary{
				UserID:     u.ID,
				Username:   u.Username,
				Email:      u.Email,
				WeekStart:  from,
				WeekEnd:    day,
				Challenges: []notify.ChallengeSummary{},
			}
			summaries[u.ID] = sum
			days[u.ID] = map[string]struct{}{}
			order = append(order, u.ID)
		}
		sum.CurrentStreak = max(sum.CurrentStreak, m.CurrentStreak)
		sum.LongestStreak = max(sum.LongestStreak, m.LongestStreak)
		for _, r := range completed[m.ID] {
			sum.ProblemsSolved += r.SubmissionsCount
			days[u.ID][r.Date.String()] = struct{}{}
		}

		if md.Challenge.Status != domain.StatusActive {
			continue
		}
		rank, err := s.rankOf(ctx, ranks, md.Challenge.ID, m.ID)
		if err != nil {
			return 0, err
		}
		sum.Challenges = append(sum.Challenges, notify.ChallengeSummary{
			ChallengeID:    md.Challenge.ID,
			Name:           md.Challenge.Name,
			Rank:           rank,
			Streak:         m.CurrentStreak,
			CompletionRate: int(math.Round(float64(len(completed[m.ID])) * 100 / summaryDays)),
		})
	}

	for _, id := range order {
		sum := summaries[id]
		sum.DaysCompleted = len(days[id])
		s.notifier.WeeklySummary(ctx, *sum)
	}
	s.log.Info("weekly summaries dispatched", "week_start", from, "week_end", day, "count", len(order))
	return len(order), nil
}

// rankOf returns the member's 1-based leaderboard position, loading each
// challenge's ranking once per run.
func (s *EvalSrvc) rankOf(ctx context.Context, cache map[uuid.UUID]map[uuid.UUID]int, challengeID, memberID uuid.UUID) (int, error) {
	ranks, ok := cache[challengeID]
	if !ok {
		ms, err := s.store.ListActiveMemberships(ctx, challengeID)
		if err != nil {
			return 0, fmt.Errorf("failed to list members of %s: %w", challengeID, err)
		}
		RankMembers(ms)
		ranks = make(map[uuid.UUID]int, len(ms))
		for i, m := range ms {
			ranks[m.ID] = i + 1
		}
		cache[challengeID] = ranks
	}
	return ranks[memberID], nil
}

// RankMembers orders a challenge leaderboard: longest streak, then current
// streak, then fewest penalties.
func RankMembers(ms []domain.Membership) {
	slices.SortStableFunc(ms, func(a, b domain.Membership) int {
		if c := cmp.Compare(b.LongestStreak, a.LongestStreak); c != 0 {
			return c
		}
		if c := cmp.Compare(b.CurrentStreak, a.CurrentStreak); c != 0 {
			return c
		}
		return cmp.Compare(a.TotalPenalties, b.TotalPenalties)
	})
}
