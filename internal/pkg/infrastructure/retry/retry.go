package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 10 * time.Second
	maxAttempts     = 3
)

// Do runs op with capped exponential backoff and jitter, giving up after
// three attempts in total.
func Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.25

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx))
}
