package notify

import (
	"context"
	"sync"
)

// Recorder keeps every event in memory. Err, when set, is returned after
// recording.
type Recorder struct {
	lock      sync.Mutex
	broken    []StreakBroken
	reminders []StreakReminder
	summaries []WeeklySummary
	Err       error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) StreakBroken(ctx context.Context, ev StreakBroken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.broken = append(r.broken, ev)
	return r.Err
}

func (r *Recorder) StreakReminder(ctx context.Context, ev StreakReminder) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.reminders = append(r.reminders, ev)
	return r.Err
}

func (r *Recorder) WeeklySummary(ctx context.Context, ev WeeklySummary) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.summaries = append(r.summaries, ev)
	return r.Err
}

func (r *Recorder) Broken() []StreakBroken {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]StreakBroken(nil), r.broken...)
}

func (r *Recorder) Reminders() []StreakReminder {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]StreakReminder(nil), r.reminders...)
}

func (r *Recorder) Summaries() []WeeklySummary {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]WeeklySummary(nil), r.summaries...)
}
