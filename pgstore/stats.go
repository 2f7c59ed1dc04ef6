package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/domain"
)

const memberDetailColumns = `c.id, c.owner_id, c.name, c.difficulty_filter, c.min_submissions_per_day,
	c.unique_problem_constraint, c.penalty_amount, c.start_date, c.end_date,
	c.status, c.visibility, c.created_at,
	m.id, m.challenge_id, m.user_id, m.current_streak, m.longest_streak,
	m.total_penalties, m.is_active, m.joined_at,
	u.id, u.username, u.email, u.leetcode_username`

func collectMemberDetails(rows pgx.Rows) ([]domain.MemberDetail, error) {
	defer rows.Close()
	var res []domain.MemberDetail
	for rows.Next() {
		var md domain.MemberDetail
		var filter []string
		c, m, u := &md.Challenge, &md.Membership, &md.User
		err := rows.Scan(
			&c.ID, &c.OwnerID, &c.Name, &filter, &c.MinSubmissionsPerDay,
			&c.UniqueProblemConstraint, &c.PenaltyAmount, &c.StartDate, &c.EndDate,
			&c.Status, &c.Visibility, &c.CreatedAt,
			&m.ID, &m.ChallengeID, &m.UserID, &m.CurrentStreak, &m.LongestStreak,
			&m.TotalPenalties, &m.IsActive, &m.JoinedAt,
			&u.ID, &u.Username, &u.Email, &u.LeetcodeUsername,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member detail: %w", err)
		}
		for _, d := range filter {
			c.DifficultyFilter = append(c.DifficultyFilter, domain.Difficulty(d))
		}
		res = append(res, md)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member details: %w", err)
	}
	return res, nil
}

// ListReminderCandidates returns active members with a running streak in
// challenges evaluable on day that have no passed result for it yet.
func (s *Store) ListReminderCandidates(ctx context.Context, day domain.Day) ([]domain.ReminderCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memberDetailColumns+`
		FROM challenge_members m
		JOIN challenges c ON c.id = m.challenge_id
		JOIN users u ON u.id = m.user_id
		LEFT JOIN daily_results r
			ON r.challenge_id = m.challenge_id AND r.member_id = m.id AND r.date = $1
		WHERE m.is_active AND m.current_streak > 0
			AND c.status = 'ACTIVE' AND $1 BETWEEN c.start_date AND c.end_date
			AND r.completed IS NOT TRUE
		ORDER BY c.id, m.joined_at
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminder candidates: %w", err)
	}
	return collectMemberDetails(rows)
}

// ListActiveMemberDetails returns every active membership ordered by user,
// then challenge name.
func (s *Store) ListActiveMemberDetails(ctx context.Context) ([]domain.MemberDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memberDetailColumns+`
		FROM challenge_members m
		JOIN challenges c ON c.id = m.challenge_id
		JOIN users u ON u.id = m.user_id
		WHERE m.is_active
		ORDER BY u.id, c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	return collectMemberDetails(rows)
}

func (s *Store) DailyStats(ctx context.Context, from, to domain.Day) ([]domain.DayStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date,
			count(*),
			count(*) FILTER (WHERE completed),
			count(*) FILTER (WHERE NOT completed),
			count(*) FILTER (WHERE completed IS NULL)
		FROM daily_results
		WHERE date BETWEEN $1 AND $2
		GROUP BY date
		ORDER BY date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	res := []domain.DayStats{}
	for rows.Next() {
		var st domain.DayStats
		if err := rows.Scan(&st.Date, &st.Total, &st.Passed, &st.Failed, &st.Pending); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}
	return res, nil
}

func (s *Store) ChallengeStats(ctx context.Context, from, to domain.Day) ([]domain.ChallengeStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT challenge_id,
			count(*),
			count(*) FILTER (WHERE completed),
			count(*) FILTER (WHERE NOT completed)
		FROM daily_results
		WHERE completed IS NOT NULL AND date BETWEEN $1 AND $2
		GROUP BY challenge_id
		ORDER BY challenge_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge stats: %w", err)
	}
	defer rows.Close()

	res := []domain.ChallengeStats{}
	for rows.Next() {
		var st domain.ChallengeStats
		if err := rows.Scan(&st.ChallengeID, &st.Total, &st.Passed, &st.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan challenge stats: %w", err)
		}
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenge stats: %w", err)
	}
	return res, nil
}
