package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResultKey identifies the single daily result a member may have per day.
type ResultKey struct {
	ChallengeID uuid.UUID
	MemberID    uuid.UUID
	Date        Day
}

func (k ResultKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ChallengeID, k.MemberID, k.Date)
}

type DailyResult struct {
	ChallengeID uuid.UUID
	MemberID    uuid.UUID
	Date        Day

	// Completed is nil while the result is pending on an upstream failure.
	Completed        *bool
	SubmissionsCount int
	ProblemsSolved   []string
	EvaluatedAt      *time.Time
	Metadata         map[string]any
}

func (r DailyResult) Key() ResultKey {
	return ResultKey{ChallengeID: r.ChallengeID, MemberID: r.MemberID, Date: r.Date}
}

func (r DailyResult) Pending() bool { return r.Completed == nil }

func (r DailyResult) Passed() bool { return r.Completed != nil && *r.Completed }

type PenaltyEntry struct {
	ID        uuid.UUID
	MemberID  uuid.UUID
	Amount    int64
	Reason    string
	Date      Day
	CreatedAt time.Time
}

type ProblemMetadata struct {
	TitleSlug     string
	QuestionID    string
	Title         string
	Difficulty    Difficulty
	TopicTags     []string
	AcRate        *float64
	Likes         int
	Dislikes      int
	IsPaidOnly    bool
	LastFetchedAt time.Time
}

func (m ProblemMetadata) StaleAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(m.LastFetchedAt) >= ttl
}

// DayStats aggregates resolved results for one calendar day.
type DayStats struct {
	Date    Day `json:"date"`
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// ChallengeStats aggregates resolved results for one challenge.
type ChallengeStats struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
}

func (s ChallengeStats) FailRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}
