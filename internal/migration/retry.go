package migration

import (
	"math"
	"math/rand"
	"time"

	"flock/internal/ferrors"
)

// RetryConfig configures exponential backoff for transferAndVerify:
// makes at most MaxAttempts attempts in total (the first call included),
// with the delay between them growing by BackoffFactor per attempt, capped
// at MaxDelay.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig matches internal/config.DefaultMigrationConfig's retry
// defaults (5 attempts, 1s initial, 30s ceiling, factor 2.0).
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   5,
	InitialDelay:  1 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
}

// RetryPolicy pairs a RetryConfig with the Transient-kind classifier used
// throughout flock (§7).
type RetryPolicy struct {
	Config RetryConfig
}

// NewRetryPolicy constructs a RetryPolicy.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	return &RetryPolicy{Config: cfg}
}

// ShouldRetry retries only errors tagged Transient; Fatal and Validation
// errors are never retried (fail-closed default per ferrors.KindOf).
func (p *RetryPolicy) ShouldRetry(err error) bool {
	return err != nil && ferrors.KindOf(err) == ferrors.Transient
}

// Delay computes the backoff delay before the given attempt (1-indexed;
// attempt 1 is the first retry after the initial try).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-1)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	delay += jitter
	if delay < 0 {
		delay = p.Config.InitialDelay
	}
	return delay
}
