package unifiedllm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures retry behavior. The wait between attempts is drawn
// uniformly from [MinDelay, MaxDelay] and re-sampled for every attempt; it
// does not grow between attempts.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	MinDelay    time.Duration // lower bound of the wait
	MaxDelay    time.Duration // upper bound of the wait
	OnRetry     func(err error, attempt int, delay time.Duration)

	// Retryable decides which errors are worth another attempt. Nil means
	// IsTransientOverload.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Nil means a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// Float64 returns a number in [0, 1). Nil means math/rand/v2.
	Float64 func() float64
}

// DefaultRetryPolicy returns the provider-overload policy: five attempts,
// waiting 30 to 45 seconds between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinDelay:    30 * time.Second,
		MaxDelay:    45 * time.Second,
	}
}

// Delay samples the wait before the next attempt.
func (p RetryPolicy) Delay() time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	r := rand.Float64
	if p.Float64 != nil {
		r = p.Float64
	}
	spread := float64(p.MaxDelay - p.MinDelay)
	return p.MinDelay + time.Duration(r()*spread)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransientOverload(err)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepWithContext(ctx, d)
}

// Retry executes fn with the configured retry policy. Non-retryable errors
// are returned as-is; once the attempts are spent the last error is wrapped
// with ErrRetriesExhausted.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !policy.retryable(err) {
			return zero, err
		}
		if attempt >= attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		delay := policy.Delay()
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt, delay)
		}

		if err := policy.sleep(ctx, delay); err != nil {
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: err}}
		}
	}
}

// SleepWithContext sleeps for the specified duration, respecting context
// cancellation.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
