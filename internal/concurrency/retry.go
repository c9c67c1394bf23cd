package concurrency

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig parameterizes WithRetry. Zero value is not usable; use
// DefaultRetryConfig as a base.
type RetryConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries uint64
}

// DefaultRetryConfig is the backoff shape used on every contended
// resource: DB locks, Git index locks, stale archive locks — exponential
// backoff with ±25% jitter and a bounded attempt count.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		MaxRetries: 7,
	}
}

// WithRetry runs fn, retrying on any error fn itself does not wrap in
// backoff.Permanent, using exponential backoff with 25% jitter.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	return backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx))
}
