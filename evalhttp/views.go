package evalhttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/problemcache"
)

type resultView struct {
	ChallengeID      uuid.UUID      `json:"challenge_id"`
	MemberID         uuid.UUID      `json:"member_id"`
	Date             domain.Day     `json:"date"`
	Status           string         `json:"status"`
	Completed        *bool          `json:"completed"`
	SubmissionsCount int            `json:"submissions_count"`
	ProblemsSolved   []string       `json:"problems_solved"`
	EvaluatedAt      *time.Time     `json:"evaluated_at"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func mapResult(r domain.DailyResult) resultView {
	status := "failed"
	switch {
	case r.Pending():
		status = "pending"
	case r.Passed():
		status = "completed"
	}
	solved := r.ProblemsSolved
	if solved == nil {
		solved = []string{}
	}
	return resultView{
		ChallengeID:      r.ChallengeID,
		MemberID:         r.MemberID,
		Date:             r.Date,
		Status:           status,
		Completed:        r.Completed,
		SubmissionsCount: r.SubmissionsCount,
		ProblemsSolved:   solved,
		EvaluatedAt:      r.EvaluatedAt,
		Metadata:         r.Metadata,
	}
}

func mapResults(rs []domain.DailyResult) []resultView {
	res := make([]resultView, len(rs))
	for i, r := range rs {
		res[i] = mapResult(r)
	}
	return res
}

type membershipView struct {
	ID             uuid.UUID `json:"id"`
	ChallengeID    uuid.UUID `json:"challenge_id"`
	UserID         uuid.UUID `json:"user_id"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	TotalPenalties int64     `json:"total_penalties"`
	IsActive       bool      `json:"is_active"`
	JoinedAt       time.Time `json:"joined_at"`
}

func mapMembership(m domain.Membership) membershipView {
	return membershipView{
		ID:             m.ID,
		ChallengeID:    m.ChallengeID,
		UserID:         m.UserID,
		CurrentStreak:  m.CurrentStreak,
		LongestStreak:  m.LongestStreak,
		TotalPenalties: m.TotalPenalties,
		IsActive:       m.IsActive,
		JoinedAt:       m.JoinedAt,
	}
}

type problemView struct {
	TitleSlug     string            `json:"title_slug"`
	QuestionID    string            `json:"question_id"`
	Title         string            `json:"title"`
	Difficulty    domain.Difficulty `json:"difficulty"`
	TopicTags     []string          `json:"topic_tags"`
	AcRate        *float64          `json:"ac_rate"`
	Likes         int               `json:"likes"`
	Dislikes      int               `json:"dislikes"`
	IsPaidOnly    bool              `json:"is_paid_only"`
	LastFetchedAt time.Time         `json:"last_fetched_at"`
	Stale         bool              `json:"stale"`
}

func mapProblem(l problemcache.Lookup) problemView {
	p := l.Problem
	tags := p.TopicTags
	if tags == nil {
		tags = []string{}
	}
	return problemView{
		TitleSlug:     p.TitleSlug,
		QuestionID:    p.QuestionID,
		Title:         p.Title,
		Difficulty:    p.Difficulty,
		TopicTags:     tags,
		AcRate:        p.AcRate,
		Likes:         p.Likes,
		Dislikes:      p.Dislikes,
		IsPaidOnly:    p.IsPaidOnly,
		LastFetchedAt: p.LastFetchedAt,
		Stale:         l.Stale,
	}
}
