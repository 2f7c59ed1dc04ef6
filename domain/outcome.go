package domain

import "github.com/programme-lv/streaks/streak"

// Outcome is a resolved daily result with the penalty it owes, if any.
type Outcome struct {
	Result  DailyResult
	Penalty *PenaltyEntry
}

// RecordedOutcome reports what a store did with an Outcome.
type RecordedOutcome struct {
	// AlreadyResolved means the key had a resolved result and nothing changed.
	AlreadyResolved bool
	Streak          streak.Transition
	Membership      Membership
}

// MemberDetail is a membership together with its challenge and user.
type MemberDetail struct {
	Challenge  Challenge
	Membership Membership
	User       User
}

// ReminderCandidate is a member with a running streak and no completed
// result for the day yet.
type ReminderCandidate = MemberDetail
