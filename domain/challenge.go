package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Difficulty string

const (
	DifficultyEasy    Difficulty = "Easy"
	DifficultyMedium  Difficulty = "Medium"
	DifficultyHard    Difficulty = "Hard"
	DifficultyUnknown Difficulty = "Unknown"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

type ChallengeStatus string

const (
	StatusPending   ChallengeStatus = "PENDING"
	StatusActive    ChallengeStatus = "ACTIVE"
	StatusCompleted ChallengeStatus = "COMPLETED"
	StatusCancelled ChallengeStatus = "CANCELLED"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

type Challenge struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Name    string

	// DifficultyFilter is empty when every difficulty counts.
	DifficultyFilter        []Difficulty
	MinSubmissionsPerDay    int
	UniqueProblemConstraint bool
	PenaltyAmount           int64

	StartDate  Day
	EndDate    Day
	Status     ChallengeStatus
	Visibility Visibility
	CreatedAt  time.Time
}

// EvaluableOn reports whether the daily evaluation should run for day.
func (c Challenge) EvaluableOn(day Day) bool {
	return c.Status == StatusActive && day.Within(c.StartDate, c.EndDate)
}

// AcceptsDifficulty applies the difficulty filter.
func (c Challenge) AcceptsDifficulty(d Difficulty) bool {
	if len(c.DifficultyFilter) == 0 {
		return true
	}
	return slices.Contains(c.DifficultyFilter, d)
}

func (c Challenge) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	if c.MinSubmissionsPerDay < 1 {
		errs = append(errs, fmt.Errorf("min submissions per day must be >= 1, got %d", c.MinSubmissionsPerDay))
	}
	if c.PenaltyAmount < 0 {
		errs = append(errs, fmt.Errorf("penalty amount must be >= 0, got %d", c.PenaltyAmount))
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		errs = append(errs, errors.New("start and end date are required"))
	} else if !c.EndDate.After(c.StartDate) {
		errs = append(errs, fmt.Errorf("end date %s must be after start date %s", c.EndDate, c.StartDate))
	}
	for _, d := range c.DifficultyFilter {
		if _, err := ParseDifficulty(string(d)); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Status {
	case StatusPending, StatusActive, StatusCompleted, StatusCancelled:
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", c.Status))
	}
	switch c.Visibility {
	case VisibilityPublic, VisibilityPrivate:
	default:
		errs = append(errs, fmt.Errorf("unknown visibility %q", c.Visibility))
	}
	return errors.Join(errs...)
}

type Membership struct {
	ID             uuid.UUID
	ChallengeID    uuid.UUID
	UserID         uuid.UUID
	CurrentStreak  int
	LongestStreak  int
	TotalPenalties int64
	IsActive       bool
	JoinedAt       time.Time
}

type User struct {
	ID       uuid.UUID
	Username string
	Email    string
	// LeetcodeUsername is nil when the user never linked an account.
	LeetcodeUsername *string
}

func (u User) HasIdentity() bool {
	return u.LeetcodeUsername != nil && *u.LeetcodeUsername != ""
}

type InviteCode struct {
	Code        string
	ChallengeID uuid.UUID
	MaxUses     int
	UsedCount   int
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

func (ic InviteCode) Redeemable(now time.Time) bool {
	if ic.ExpiresAt != nil && !now.Before(*ic.ExpiresAt) {
		return false
	}
	return ic.UsedCount < ic.MaxUses
}
