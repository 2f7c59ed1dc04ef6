package evalsrvc

import (
	"context"
	"fmt"

	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/notify"
)

// SendReminders nudges members with a running streak that have no
// completed result for day yet. Sends are fire-and-forget.
func (s *EvalSrvc) SendReminders(ctx context.Context, day domain.Day) (int, error) {
	if day.IsZero() {
		day = domain.DayOf(s.now())
	}
	candidates, err := s.store.ListReminderCandidates(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	for _, rc := range candidates {
		s.notifier.StreakReminder(ctx, notify.StreakReminder{
			UserID:        rc.User.ID,
			Username:      rc.User.Username,
			Email:         rc.User.Email,
			ChallengeID:   rc.Challenge.ID,
			ChallengeName: rc.Challenge.Name,
			CurrentStreak: rc.Membership.CurrentStreak,
			Date:          day,
		})
	}
	s.log.Info("streak reminders dispatched", "day", day, "count", len(candidates))
	return len(candidates), nil
}
