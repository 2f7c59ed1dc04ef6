package jobqueue

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return !r.Retryable()
	}
	return false
}

func isRateLimited(err error) bool {
	var r interface{ RateLimited() bool }
	return errors.As(err, &r) && r.RateLimited()
}

type RetryPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 5 * time.Second, Max: 15 * time.Minute, MaxAttempts: 3}
}

// ShouldRetry reports whether a job that failed on attempt may run again.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return !IsPermanent(err) && attempt < p.MaxAttempts
}

// Delay is the wait before the attempt following attempt. Rate limited
// failures wait twice as long.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	d := p.Base
	for i := 0; i < max(attempt, 1); i++ {
		d = b.NextBackOff()
	}
	if isRateLimited(err) {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
