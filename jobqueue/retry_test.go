package jobqueue_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/stretchr/testify/assert"
)

func TestRetryDelayDoubles(t *testing.T) {
	p := jobqueue.DefaultRetryPolicy()
	err := errors.New("boom")
	assert.Equal(t, 5*time.Second, p.Delay(1, err))
	assert.Equal(t, 10*time.Second, p.Delay(2, err))
	assert.Equal(t, 20*time.Second, p.Delay(3, err))
}

func TestRetryDelayIsCapped(t *testing.T) {
	p := jobqueue.RetryPolicy{Base: time.Minute, Max: 5 * time.Minute, MaxAttempts: 10}
	assert.Equal(t, 5*time.Minute, p.Delay(8, errors.New("x")))
}

func TestRateLimitedBacksOffLonger(t *testing.T) {
	p := jobqueue.DefaultRetryPolicy()
	err := fmt.Errorf("evaluate: %w", &lcclient.Error{Kind: lcclient.KindRateLimited, Op: "fetch activity"})
	assert.Equal(t, 10*time.Second, p.Delay(1, err))
	assert.Equal(t, 20*time.Second, p.Delay(2, err))
}

func TestShouldRetry(t *testing.T) {
	p := jobqueue.DefaultRetryPolicy()
	err := errors.New("transient")
	assert.True(t, p.ShouldRetry(1, err))
	assert.True(t, p.ShouldRetry(2, err))
	assert.False(t, p.ShouldRetry(3, err))

	assert.False(t, p.ShouldRetry(1, jobqueue.Permanent(err)))
	assert.False(t, p.ShouldRetry(1, &lcclient.Error{Kind: lcclient.KindNotFound}))
	assert.True(t, p.ShouldRetry(1, &lcclient.Error{Kind: lcclient.KindAuthExpired}))
}
