package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestRetryTransientThenSuccess(t *testing.T) {
	p := instantPolicy()

	calls := 0
	text, err := p.Do(context.Background(), nil, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient(500, errors.New("server error"))
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentFailsImmediately(t *testing.T) {
	p := instantPolicy()

	calls := 0
	_, err := p.Do(context.Background(), nil, func(context.Context) (string, error) {
		calls++
		return "", errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustion(t *testing.T) {
	p := instantPolicy()

	calls := 0
	_, err := p.Do(context.Background(), nil, func(context.Context) (string, error) {
		calls++
		return "", transient(503, errors.New("still down"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryBackoffSchedule(t *testing.T) {
	p := DefaultRetryPolicy()
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := p.Do(context.Background(), nil, func(context.Context) (string, error) {
		return "", transient(500, errors.New("boom"))
	})
	require.Error(t, err)

	// 2^attempt plus the base constant.
	assert.Equal(t, []time.Duration{3 * time.Second, 4 * time.Second}, delays)
}

func TestRetryRateLimitUsesLongerConstant(t *testing.T) {
	p := DefaultRetryPolicy()
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := p.Do(context.Background(), nil, func(context.Context) (string, error) {
		return "", transient(429, errors.New("rate limited"))
	})
	require.Error(t, err)

	assert.Equal(t, []time.Duration{4 * time.Second, 5 * time.Second}, delays)
}

func TestRetryRespectsCancellation(t *testing.T) {
	p := DefaultRetryPolicy()
	p.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Do(ctx, nil, func(context.Context) (string, error) {
		return "", transient(500, errors.New("boom"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}
