package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/programme-lv/streaks/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingNotifier struct {
	release chan struct{}
	notify.Recorder
}

func (b *blockingNotifier) StreakBroken(ctx context.Context, ev notify.StreakBroken) error {
	<-b.release
	return b.Recorder.StreakBroken(ctx, ev)
}

func TestDispatcherDoesNotBlockCaller(t *testing.T) {
	n := &blockingNotifier{release: make(chan struct{})}
	d := notify.NewDispatcher(n)

	done := make(chan struct{})
	go func() {
		d.StreakBroken(context.Background(), notify.StreakBroken{PriorStreak: 3})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on the notifier")
	}

	close(n.release)
	d.Wait()
	require.Len(t, n.Broken(), 1)
	assert.Equal(t, 3, n.Broken()[0].PriorStreak)
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	r := notify.NewRecorder()
	r.Err = errors.New("smtp down")
	d := notify.NewDispatcher(r)

	d.StreakReminder(context.Background(), notify.StreakReminder{CurrentStreak: 2})
	d.Wait()
	assert.Len(t, r.Reminders(), 1)
}

func TestDispatcherSurvivesCancelledContext(t *testing.T) {
	r := notify.NewRecorder()
	d := notify.NewDispatcher(r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.StreakBroken(ctx, notify.StreakBroken{PriorStreak: 1})
	d.Wait()
	assert.Len(t, r.Broken(), 1)
}

func TestDispatcherSendsWeeklySummary(t *testing.T) {
	r := notify.NewRecorder()
	d := notify.NewDispatcher(r)

	d.WeeklySummary(context.Background(), notify.WeeklySummary{ProblemsSolved: 9})
	d.Wait()
	require.Len(t, r.Summaries(), 1)
	assert.Equal(t, 9, r.Summaries()[0].ProblemsSolved)
}
