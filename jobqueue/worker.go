package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/streaks/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Handler func(ctx context.Context, job Job) error

type WorkerOpts struct {
	Concurrency int
	JobsPerSec  int
	Retry       RetryPolicy
}

// Worker runs jobs from a Broker. Every job is an independent unit: a
// failure only ever affects that job's own retries.
type Worker struct {
	broker   Broker
	ledger   Ledger
	handlers map[Kind]Handler
	retry    RetryPolicy
	sem      chan struct{}
	limiter  *rate.Limiter
	inflight *xsync.MapOf[string, time.Time]
	log      *slog.Logger
	now      func() time.Time
}

func NewWorker(broker Broker, ledger Ledger, opts WorkerOpts) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.JobsPerSec <= 0 {
		opts.JobsPerSec = 20
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Worker{
		broker:   broker,
		ledger:   ledger,
		handlers: map[Kind]Handler{},
		retry:    opts.Retry,
		sem:      make(chan struct{}, opts.Concurrency),
		limiter:  rate.NewLimiter(rate.Limit(opts.JobsPerSec), opts.JobsPerSec),
		inflight: xsync.NewMapOf[string, time.Time](),
		log:      slog.Default().With("module", "worker"),
		now:      time.Now,
	}
}

// Handle registers h for kind. It must be called before Run.
func (w *Worker) Handle(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run processes deliveries until ctx is cancelled, then waits for the
// jobs already started.
func (w *Worker) Run(ctx context.Context) error {
	g := &errgroup.Group{}
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		deliveries, err := w.broker.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			w.log.Error("failed to receive jobs", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, d := range deliveries {
			if _, loaded := w.inflight.LoadOrStore(d.Job.ID, w.now()); loaded {
				w.log.Debug("job already in flight", "job_id", d.Job.ID)
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				w.inflight.Delete(d.Job.ID)
				return nil
			}
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				w.inflight.Delete(d.Job.ID)
				return nil
			}
			g.Go(func() error {
				defer func() { <-w.sem }()
				defer w.inflight.Delete(d.Job.ID)
				// jobs finish their current attempt even during shutdown
				w.process(context.WithoutCancel(ctx), d)
				return nil
			})
		}
	}
}

func (w *Worker) process(ctx context.Context, d Delivery) {
	job := d.Job
	log := w.log.With("job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
	ctx = logger.WithLogger(ctx, log)

	rec, err := w.ledger.GetJob(ctx, job.ID)
	if err != nil {
		log.Error("failed to load job record", "error", err)
		return
	}
	if rec != nil && rec.State.Terminal() && rec.Attempts >= job.Attempt {
		log.Debug("job already finished, dropping delivery", "state", rec.State)
		w.ack(ctx, d, log)
		return
	}

	w.update(ctx, job.ID, StateRunning, job.Attempt, "", log)

	err = w.run(ctx, job)
	if err == nil {
		w.update(ctx, job.ID, StateCompleted, job.Attempt, "", log)
		w.ack(ctx, d, log)
		log.Debug("job completed")
		return
	}

	if !w.retry.ShouldRetry(job.Attempt, err) {
		log.Warn("job failed", "error", err, "permanent", IsPermanent(err))
		w.update(ctx, job.ID, StateFailed, job.Attempt, err.Error(), log)
		w.ack(ctx, d, log)
		return
	}

	delay := w.retry.Delay(job.Attempt, err)
	next := job
	next.Attempt++
	if perr := w.broker.Publish(ctx, next, delay); perr != nil {
		// the original delivery stays unacked and will be redelivered
		log.Error("failed to schedule retry", "error", perr)
		w.update(ctx, job.ID, StateRetrying, job.Attempt, err.Error(), log)
		return
	}
	log.Info("job will be retried", "error", err, "delay", delay)
	w.update(ctx, job.ID, StateRetrying, job.Attempt, err.Error(), log)
	w.ack(ctx, d, log)
}

func (w *Worker) run(ctx context.Context, job Job) (err error) {
	h, ok := w.handlers[job.Kind]
	if !ok {
		return Permanent(fmt.Errorf("no handler for job kind %q", job.Kind))
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return h(ctx, job)
}

func (w *Worker) update(ctx context.Context, id string, state State, attempt int, lastErr string, log *slog.Logger) {
	if err := w.ledger.UpdateJob(ctx, id, state, attempt, lastErr, w.now().UTC()); err != nil {
		log.Error("failed to update job record", "state", state, "error", err)
	}
}

func (w *Worker) ack(ctx context.Context, d Delivery, log *slog.Logger) {
	if err := w.broker.Ack(ctx, d); err != nil {
		log.Error("failed to ack job", "error", err)
	}
}
