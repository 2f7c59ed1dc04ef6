package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/programme-lv/streaks/conf"
	"github.com/programme-lv/streaks/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() conf.Config {
	cfg := conf.Default()
	cfg.Store = "memory"
	cfg.Broker = "memory"
	cfg.JwtKey = "secret"
	cfg.EncryptionKey = strings.Repeat("0f", 32)
	cfg.RemindersEnabled = true
	cfg.WeeklySummariesEnabled = true
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	a, err := Build(t.Context(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	a.Scheduler.Start()
	runs := a.Scheduler.NextRuns()
	assert.Contains(t, runs, scheduler.JobDailyEvaluation)
	assert.Contains(t, runs, scheduler.JobDailyReminder)
	assert.Contains(t, runs, scheduler.JobWeeklySummary)

	rec := httptest.NewRecorder()
	a.Http.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRejectsBadKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.EncryptionKey = strings.Repeat("zz", 32)
	_, err := Build(t.Context(), cfg)
	require.Error(t, err)
}
