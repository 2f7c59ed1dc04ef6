// Package notify sends best-effort user notifications. Failures are logged
// and never reach the caller's state.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
)

type EventType string

const (
	EventStreakBroken   EventType = "streak_broken"
	EventStreakReminder EventType = "streak_reminder"
	EventWeeklySummary  EventType = "weekly_summary"
)

type StreakBroken struct {
	UserID        uuid.UUID  `json:"user_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	ChallengeID   uuid.UUID  `json:"challenge_id"`
	ChallengeName string     `json:"challenge_name"`
	PriorStreak   int        `json:"prior_streak"`
	Date          domain.Day `json:"date"`
}

type StreakReminder struct {
	UserID        uuid.UUID  `json:"user_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	ChallengeID   uuid.UUID  `json:"challenge_id"`
	ChallengeName string     `json:"challenge_name"`
	CurrentStreak int        `json:"current_streak"`
	Date          domain.Day `json:"date"`
}

// WeeklySummary covers one user's last seven days across every active
// membership.
type WeeklySummary struct {
	UserID         uuid.UUID          `json:"user_id"`
	Username       string             `json:"username"`
	Email          string             `json:"email"`
	WeekStart      domain.Day         `json:"week_start"`
	WeekEnd        domain.Day         `json:"week_end"`
	ProblemsSolved int                `json:"problems_solved"`
	DaysCompleted  int                `json:"days_completed"`
	CurrentStreak  int                `json:"current_streak"`
	LongestStreak  int                `json:"longest_streak"`
	Challenges     []ChallengeSummary `json:"challenges"`
}

type ChallengeSummary struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	Name        string    `json:"name"`
	Rank        int       `json:"rank"`
	Streak      int       `json:"streak"`
	// CompletionRate is the percentage of the week's days completed.
	CompletionRate int `json:"completion_rate"`
}

type Notifier interface {
	StreakBroken(ctx context.Context, ev StreakBroken) error
	StreakReminder(ctx context.Context, ev StreakReminder) error
	WeeklySummary(ctx context.Context, ev WeeklySummary) error
}

// LogNotifier only logs. Used for local runs without a mail pipeline.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.Default().With("module", "notify")}
}

func (n *LogNotifier) StreakBroken(ctx context.Context, ev StreakBroken) error {
	n.log.Info("streak broken", "user_id", ev.UserID, "challenge", ev.ChallengeName,
		"prior_streak", ev.PriorStreak, "day", ev.Date)
	return nil
}

func (n *LogNotifier) StreakReminder(ctx context.Context, ev StreakReminder) error {
	n.log.Info("streak reminder", "user_id", ev.UserID, "challenge", ev.ChallengeName,
		"current_streak", ev.CurrentStreak, "day", ev.Date)
	return nil
}

func (n *LogNotifier) WeeklySummary(ctx context.Context, ev WeeklySummary) error {
	n.log.Info("weekly summary", "user_id", ev.UserID, "week_start", ev.WeekStart,
		"problems_solved", ev.ProblemsSolved, "challenges", len(ev.Challenges))
	return nil
}
