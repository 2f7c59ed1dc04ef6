package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher sends notifications in the background. Callers never wait
// and never see errors.
type Dispatcher struct {
	n       Notifier
	timeout time.Duration
	wg      sync.WaitGroup
	log     *slog.Logger
}

func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{
		n:       n,
		timeout: 10 * time.Second,
		log:     slog.Default().With("module", "notify"),
	}
}

func (d *Dispatcher) StreakBroken(ctx context.Context, ev StreakBroken) {
	d.dispatch(ctx, string(EventStreakBroken), func(ctx context.Context) error {
		return d.n.StreakBroken(ctx, ev)
	})
}

func (d *Dispatcher) StreakReminder(ctx context.Context, ev StreakReminder) {
	d.dispatch(ctx, string(EventStreakReminder), func(ctx context.Context) error {
		return d.n.StreakReminder(ctx, ev)
	})
}

func (d *Dispatcher) WeeklySummary(ctx context.Context, ev WeeklySummary) {
	d.dispatch(ctx, string(EventWeeklySummary), func(ctx context.Context) error {
		return d.n.WeeklySummary(ctx, ev)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, event string, send func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notifier panicked", "event", event, "panic", r)
			}
		}()
		if err := send(ctx); err != nil {
			d.log.Warn("failed to send notification", "event", event, "error", err)
		}
	}()
}

// Wait blocks until every dispatched notification finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
