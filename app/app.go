package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/streaks/challenge"
	"github.com/programme-lv/streaks/conf"
	"github.com/programme-lv/streaks/evalhttp"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/memstore"
	"github.com/programme-lv/streaks/notify"
	"github.com/programme-lv/streaks/pgstore"
	"github.com/programme-lv/streaks/problemcache"
	"github.com/programme-lv/streaks/scheduler"
	"github.com/programme-lv/streaks/sessvault"
)

// Version is overridden at link time.
var Version = "dev"

// Store is everything the services need from persistence.
type Store interface {
	evalsrvc.Store
	challenge.Store
	sessvault.Store
	problemcache.Store
	jobqueue.Ledger
}

// App is the wired service graph. Nothing is started by Build.
type App struct {
	Config     conf.Config
	Store      Store
	Broker     jobqueue.Broker
	Queue      *jobqueue.Queue
	Worker     *jobqueue.Worker
	Eval       *evalsrvc.EvalSrvc
	Challenges *challenge.Service
	Vault      *sessvault.Vault
	Dispatcher *notify.Dispatcher
	Scheduler  *scheduler.Scheduler
	Http       *evalhttp.HttpServer

	pool *pgxpool.Pool
}

func Build(ctx context.Context, cfg conf.Config) (*App, error) {
	a := &App{Config: cfg}
	log := slog.Default().With("module", "app")

	switch cfg.Store {
	case "memory":
		a.Store = memstore.New()
		log.Warn("using in-memory store, nothing survives a restart")
	default:
		connStr, err := conf.GetPgConnStrFromEnv()
		if err != nil {
			return nil, err
		}
		pool, err := pgstore.Connect(ctx, connStr)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.Store = pgstore.New(pool)
	}

	var sqsClient *sqs.Client
	if cfg.Broker == "sqs" || cfg.NotifyQueueUrl != "" {
		client, err := jobqueue.NewSqsClient(ctx, cfg.AwsRegion)
		if err != nil {
			a.Close()
			return nil, err
		}
		sqsClient = client
	}

	switch cfg.Broker {
	case "memory":
		a.Broker = jobqueue.NewMemBroker()
	default:
		broker, err := jobqueue.NewSqsBroker(sqsClient, cfg.JobQueueUrl)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Broker = broker
	}
	a.Queue = jobqueue.NewQueue(a.Broker, a.Store)
	a.Worker = jobqueue.NewWorker(a.Broker, a.Store, jobqueue.WorkerOpts{
		Concurrency: cfg.WorkerConcurrency,
		JobsPerSec:  cfg.WorkerJobsPerSec,
		Retry: jobqueue.RetryPolicy{
			Base:        cfg.JobBackoffBase.Duration,
			Max:         jobqueue.DefaultRetryPolicy().Max,
			MaxAttempts: cfg.JobMaxAttempts,
		},
	})

	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.NotifyQueueUrl != "" {
		notifier = notify.NewSqsNotifier(sqsClient, cfg.NotifyQueueUrl)
	}
	a.Dispatcher = notify.NewDispatcher(notifier)

	client := lcclient.NewClient(cfg.LeetcodeGraphqlUrl,
		lcclient.WithTimeout(cfg.LeetcodeTimeout.Duration),
		lcclient.WithRateLimit(cfg.LeetcodeRatePerSec, max(1, int(cfg.LeetcodeRatePerSec*2))),
		lcclient.WithFetchLimit(cfg.LeetcodeFetchLimit))

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	sealer, err := sessvault.NewSealer(key)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Vault = sessvault.NewVault(sealer, a.Store, client)

	problems := problemcache.New(a.Store, client, problemcache.Options{
		MemoryTTL:  cfg.ProblemCacheTTL.Duration,
		StaleAfter: cfg.ProblemStaleAfter.Duration,
	})

	a.Eval = evalsrvc.NewEvalSrvc(evalsrvc.Deps{
		Store:    a.Store,
		Fetcher:  client,
		Problems: problems,
		Sessions: a.Vault,
		Queue:    a.Queue,
		Notifier: a.Dispatcher,
	}, evalsrvc.Options{RevisitPendingDays: cfg.RevisitPendingDays})
	a.Eval.RegisterHandlers(a.Worker)

	a.Challenges = challenge.NewService(a.Store)

	var reminder scheduler.Reminder
	if cfg.RemindersEnabled {
		reminder = a.Eval
	}
	var summarizer scheduler.Summarizer
	if cfg.WeeklySummariesEnabled {
		summarizer = a.Eval
	}
	a.Scheduler, err = scheduler.New(a.Eval, reminder, summarizer, a.Queue, scheduler.Opts{
		EvaluationCron:    cfg.DailyEvaluationCron,
		ReminderCron:      cfg.DailyReminderCron,
		WeeklySummaryCron: cfg.WeeklySummaryCron,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Http = evalhttp.NewHttpServer(evalhttp.Deps{
		Eval:       a.Eval,
		Challenges: a.Challenges,
		Sessions:   a.Vault,
		Users:      a.Store,
	}, evalhttp.Opts{
		JwtKey:         []byte(cfg.JwtKey),
		AllowedOrigins: cfg.AllowedOrigins,
		Env:            cfg.Env,
		Version:        Version,
	})
	return a, nil
}

// Close releases the database pool and waits for pending notifications.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.Scheduler != nil {
		if err := a.Scheduler.Shutdown(); err != nil {
			slog.Warn("failed to stop scheduler", "error", err)
		}
	}
	if mb, ok := a.Broker.(*jobqueue.MemBroker); ok {
		mb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
