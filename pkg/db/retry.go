package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a conflicting write is attempted.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the config defaults.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 5, BaseDelay: 10 * time.Millisecond}

// Retry runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error is returned unchanged so callers can classify it.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	base := policy.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(policy.MaxRetries, backoff)

	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if IsRetryable(last) {
			return retry.RetryableError(last)
		}
		return last
	})
	if err != nil && last != nil {
		return last
	}
	return err
}
