package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/logger"
)

const (
	JobDailyEvaluation = "daily-evaluation"
	JobDailyReminder   = "daily-reminder"
	JobWeeklySummary   = "weekly-summary"
	JobPurge           = "job-purge"
)

type Trigger interface {
	TriggerDaily(ctx context.Context, p evalsrvc.TriggerParams) (evalsrvc.TriggerSummary, error)
}

type Reminder interface {
	SendReminders(ctx context.Context, day domain.Day) (int, error)
}

type Summarizer interface {
	SendWeeklySummaries(ctx context.Context, day domain.Day) (int, error)
}

type Purger interface {
	Purge(ctx context.Context) (int, error)
}

type Opts struct {
	EvaluationCron string
	// ReminderCron is ignored when Reminder is nil.
	ReminderCron string
	// WeeklySummaryCron is ignored when Summarizer is nil.
	WeeklySummaryCron string
	PurgeEvery        time.Duration
	// RunTimeout bounds one run of any scheduled job.
	RunTimeout time.Duration
}

type Scheduler struct {
	sched      gocron.Scheduler
	trigger    Trigger
	reminder   Reminder
	summarizer Summarizer
	purger     Purger
	opts       Opts
	log        *slog.Logger
	now        func() time.Time
}

// New registers the daily evaluation, the optional reminder and weekly
// summary runs and the hourly job purge. Cron expressions are interpreted
// in UTC.
func New(trigger Trigger, reminder Reminder, summarizer Summarizer, purger Purger, opts Opts) (*Scheduler, error) {
	if opts.PurgeEvery <= 0 {
		opts.PurgeEvery = time.Hour
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Scheduler{
		sched:      sched,
		trigger:    trigger,
		reminder:   reminder,
		summarizer: summarizer,
		purger:     purger,
		opts:       opts,
		log:        slog.Default().With("module", "scheduler"),
		now:        time.Now,
	}

	if err := s.add(JobDailyEvaluation, gocron.CronJob(opts.EvaluationCron, false), s.runEvaluation); err != nil {
		return nil, err
	}
	if reminder != nil {
		if err := s.add(JobDailyReminder, gocron.CronJob(opts.ReminderCron, false), s.runReminders); err != nil {
			return nil, err
		}
	}
	if summarizer != nil {
		if err := s.add(JobWeeklySummary, gocron.CronJob(opts.WeeklySummaryCron, false), s.runWeeklySummaries); err != nil {
			return nil, err
		}
	}
	if purger != nil {
		if err := s.add(JobPurge, gocron.DurationJob(opts.PurgeEvery), s.runPurge); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, run func(context.Context) error) error {
	_, err := s.sched.NewJob(def,
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
			defer cancel()
			ctx = logger.WithLogger(ctx, s.log.With("job", name))
			if err := run(ctx); err != nil {
				s.log.Error("scheduled job failed", "job", name, "error", err)
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	for _, j := range s.sched.Jobs() {
		next, _ := j.NextRun()
		s.log.Info("job scheduled", "job", j.Name(), "next_run", next)
	}
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// NextRuns maps job names to their next run time.
func (s *Scheduler) NextRuns() map[string]time.Time {
	res := map[string]time.Time{}
	for _, j := range s.sched.Jobs() {
		next, err := j.NextRun()
		if err == nil {
			res[j.Name()] = next
		}
	}
	return res
}

func (s *Scheduler) runEvaluation(ctx context.Context) error {
	_, err := s.trigger.TriggerDaily(ctx, evalsrvc.TriggerParams{Date: domain.DayOf(s.now())})
	return err
}

func (s *Scheduler) runReminders(ctx context.Context) error {
	_, err := s.reminder.SendReminders(ctx, domain.DayOf(s.now()))
	return err
}

func (s *Scheduler) runWeeklySummaries(ctx context.Context) error {
	_, err := s.summarizer.SendWeeklySummaries(ctx, domain.DayOf(s.now()))
	return err
}

func (s *Scheduler) runPurge(ctx context.Context) error {
	n, err := s.purger.Purge(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.FromContext(ctx).Info("purged finished jobs", "count", n)
	}
	return nil
}
