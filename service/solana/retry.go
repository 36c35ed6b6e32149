package solana

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Call is a single RPC operation. The wrappers below decorate a Call without
// knowing what it does, so they can be stacked in any order and tested alone.
type Call[T any] func(ctx context.Context) (T, error)

// RetryConfig controls WithRetry.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry is called before each backoff sleep. Optional.
	OnRetry func(err error, wait time.Duration)
}

// DefaultRetryConfig returns three retries starting at one second, doubling,
// with up to 50% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// WithRetry retries transient failures with exponential backoff.
//
// Rate-limit and not-found errors are returned on the first occurrence and
// never consume the retry budget. Rate limits are handled by WithCooldown.
func WithRetry[T any](call Call[T], cfg RetryConfig) Call[T] {
	return func(ctx context.Context) (T, error) {
		b := backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(cfg.InitialInterval),
			backoff.WithMaxInterval(cfg.MaxInterval),
			backoff.WithMultiplier(2),
			backoff.WithRandomizationFactor(0.5),
			backoff.WithMaxElapsedTime(0),
		)

		op := func() (T, error) {
			out, err := call(ctx)
			if err == nil {
				return out, nil
			}
			if IsRateLimited(err) || IsNotFound(err) || ctx.Err() != nil {
				return out, backoff.Permanent(err)
			}
			return out, err
		}

		var notify backoff.Notify
		if cfg.OnRetry != nil {
			notify = cfg.OnRetry
		}

		return backoff.RetryNotifyWithData(
			op,
			backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.MaxRetries, 0))), ctx),
			notify,
		)
	}
}

// CooldownConfig controls WithCooldown.
type CooldownConfig struct {
	Duration time.Duration
	// OnCooldown is called when a rate limit is detected. Optional.
	OnCooldown func(err error, wait time.Duration)
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// WithCooldown sleeps for the configured duration whenever call fails with a
// rate-limit error, then returns that error unchanged. It never retries.
func WithCooldown[T any](call Call[T], cfg CooldownConfig) Call[T] {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return func(ctx context.Context) (T, error) {
		out, err := call(ctx)
		if err != nil && IsRateLimited(err) {
			if cfg.OnCooldown != nil {
				cfg.OnCooldown(err, cfg.Duration)
			}
			// The caller already has an error to report; a cancelled sleep adds nothing.
			_ = sleep(ctx, cfg.Duration)
		}
		return out, err
	}
}

// WithTimeout bounds a single attempt of call. A zero timeout disables it.
func WithTimeout[T any](call Call[T], timeout time.Duration) Call[T] {
	if timeout <= 0 {
		return call
	}
	return func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return call(ctx)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
