package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docquery/internal/logging"
)

// transientError marks a gateway failure worth retrying (rate limits, server
// errors, network faults). Anything else fails the call immediately.
type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("transient gateway error (status %d): %v", e.status, e.err)
	}
	return fmt.Sprintf("transient gateway error: %v", e.err)
}

func (e *transientError) Unwrap() error { return e.err }

func transient(status int, err error) error {
	return &transientError{status: status, err: err}
}

// RetryPolicy is the explicit, bounded retry contract for gateway calls.
// Backoff grows as 2^attempt plus a constant; rate-limit responses get a
// slightly longer constant. Retries live here, in the gateway collaborator,
// never in the resolution loop.
type RetryPolicy struct {
	MaxAttempts       int
	BaseConstant      time.Duration // added to the exponential term
	RateLimitConstant time.Duration // used instead of BaseConstant after a 429

	// sleep is injectable so tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the long-standing gateway behavior: up to three
// attempts with 2^attempt backoff, +2s normally, +3s after a rate limit.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseConstant:      2 * time.Second,
		RateLimitConstant: 3 * time.Second,
	}
}

// Do runs fn with bounded retries. Only transient failures are retried; the
// context aborts both the call and any backoff wait.
func (p RetryPolicy) Do(ctx context.Context, logger logging.Logger, fn func(ctx context.Context) (string, error)) (string, error) {
	logger = logging.OrNop(logger)
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := p.sleep
	if wait == nil {
		wait = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("gateway call cancelled: %w", err)
		}

		text, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("gateway call succeeded on attempt %d", attempt+1)
			}
			return text, nil
		}
		lastErr = err

		var te *transientError
		if !errors.As(err, &te) {
			return "", err
		}
		if attempt == attempts-1 {
			break
		}

		constant := p.BaseConstant
		if te.status == 429 {
			constant = p.RateLimitConstant
			logger.Warn("rate limit hit, backing off")
		}
		delay := time.Duration(1<<uint(attempt))*time.Second + constant
		logger.Debug("attempt %d failed (%v), retrying in %v", attempt+1, err, delay)
		if err := wait(ctx, delay); err != nil {
			return "", fmt.Errorf("gateway call cancelled during backoff: %w", err)
		}
	}

	return "", fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
