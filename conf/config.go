package conf

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable of the service. Values come from an optional
// TOML file named by STREAKS_CONFIG; environment variables win.
type Config struct {
	Env            string   `toml:"env" validate:"oneof=dev prod"`
	HttpAddr       string   `toml:"http_addr" validate:"required"`
	AllowedOrigins []string `toml:"allowed_origins"`
	LogLevel       string   `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string   `toml:"log_format" validate:"oneof=json text"`

	JwtKey string `toml:"-" validate:"required"`
	// EncryptionKey is 32 bytes hex encoded.
	EncryptionKey string `toml:"-" validate:"required,len=64,hexadecimal"`

	Store string `toml:"store" validate:"oneof=postgres memory"`

	Broker             string   `toml:"broker" validate:"oneof=sqs memory"`
	AwsRegion          string   `toml:"aws_region"`
	JobQueueUrl        string   `toml:"job_queue_url" validate:"required_if=Broker sqs"`
	NotifyQueueUrl     string   `toml:"notify_queue_url"`
	WorkerConcurrency  int      `toml:"worker_concurrency" validate:"min=1,max=256"`
	WorkerJobsPerSec   int      `toml:"worker_jobs_per_sec" validate:"min=1"`
	JobMaxAttempts     int      `toml:"job_max_attempts" validate:"min=1"`
	JobBackoffBase     Duration `toml:"job_backoff_base"`
	RevisitPendingDays int      `toml:"revisit_pending_days" validate:"min=0,max=30"`

	DailyEvaluationCron string `toml:"daily_evaluation_cron" validate:"required"`
	DailyReminderCron   string `toml:"daily_reminder_cron"`
	RemindersEnabled    bool   `toml:"reminders_enabled"`
	// WeeklySummaryCron defaults to Sunday 10:00 UTC.
	WeeklySummaryCron      string `toml:"weekly_summary_cron"`
	WeeklySummariesEnabled bool   `toml:"weekly_summaries_enabled"`

	LeetcodeGraphqlUrl string   `toml:"leetcode_graphql_url" validate:"required,url"`
	LeetcodeTimeout    Duration `toml:"leetcode_timeout"`
	LeetcodeRatePerSec float64  `toml:"leetcode_rate_per_sec" validate:"gt=0"`
	LeetcodeFetchLimit int      `toml:"leetcode_fetch_limit" validate:"min=1,max=100"`
	ProblemCacheTTL    Duration `toml:"problem_cache_ttl"`
	ProblemStaleAfter  Duration `toml:"problem_stale_after"`
}

// Duration decodes "15s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() Config {
	return Config{
		Env:                 "prod",
		HttpAddr:            ":8080",
		LogLevel:            "info",
		LogFormat:           "text",
		Store:               "postgres",
		Broker:              "sqs",
		AwsRegion:           "eu-central-1",
		WorkerConcurrency:   10,
		WorkerJobsPerSec:    20,
		JobMaxAttempts:      3,
		JobBackoffBase:      Duration{5 * time.Second},
		DailyEvaluationCron: "0 1 * * *",
		DailyReminderCron:   "0 18 * * *",
		WeeklySummaryCron:   "0 10 * * 0",
		LeetcodeGraphqlUrl:  "https://leetcode.com/graphql",
		LeetcodeTimeout:     Duration{15 * time.Second},
		LeetcodeRatePerSec:  2,
		LeetcodeFetchLimit:  20,
		ProblemCacheTTL:     Duration{10 * time.Minute},
		ProblemStaleAfter:   Duration{7 * 24 * time.Hour},
	}
}

// Load reads .env (if present), the TOML file and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}
	cfg := Default()
	if path := os.Getenv("STREAKS_CONFIG"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) EncryptionKeyBytes() ([]byte, error) {
	return hex.DecodeString(c.EncryptionKey)
}

type lookupFunc func(string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	str("ENV", &c.Env)
	str("HTTP_ADDR", &c.HttpAddr)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("JWT_KEY", &c.JwtKey)
	str("ENCRYPTION_KEY", &c.EncryptionKey)
	str("STORE", &c.Store)
	str("BROKER", &c.Broker)
	str("AWS_REGION", &c.AwsRegion)
	str("JOB_QUEUE_URL", &c.JobQueueUrl)
	str("NOTIFY_QUEUE_URL", &c.NotifyQueueUrl)
	num("WORKER_CONCURRENCY", &c.WorkerConcurrency)
	num("WORKER_JOBS_PER_SEC", &c.WorkerJobsPerSec)
	num("JOB_MAX_ATTEMPTS", &c.JobMaxAttempts)
	dur("JOB_BACKOFF_BASE", &c.JobBackoffBase)
	num("REVISIT_PENDING_DAYS", &c.RevisitPendingDays)
	str("DAILY_EVALUATION_CRON", &c.DailyEvaluationCron)
	str("DAILY_REMINDER_CRON", &c.DailyReminderCron)
	flag("REMINDERS_ENABLED", &c.RemindersEnabled)
	str("WEEKLY_SUMMARY_CRON", &c.WeeklySummaryCron)
	flag("WEEKLY_SUMMARIES_ENABLED", &c.WeeklySummariesEnabled)
	str("LEETCODE_GRAPHQL_URL", &c.LeetcodeGraphqlUrl)
	dur("LEETCODE_TIMEOUT", &c.LeetcodeTimeout)
	num("LEETCODE_FETCH_LIMIT", &c.LeetcodeFetchLimit)
	if v, ok := lookup("LEETCODE_RATE_PER_SEC"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LEETCODE_RATE_PER_SEC: %v", err))
		}
		c.LeetcodeRatePerSec = f
	}
	dur("PROBLEM_CACHE_TTL", &c.ProblemCacheTTL)
	dur("PROBLEM_STALE_AFTER", &c.ProblemStaleAfter)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
