package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (s statusErr) Error() string   { return "status error" }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		RateLimitDelay: time.Millisecond,
		Multiplier:     2,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return statusErr(503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	cause := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), nil, fastConfig(5), func(context.Context) error {
		calls++
		return Permanent(cause)
	})
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	cause := errors.New("flaky")
	calls := 0
	err := Do(context.Background(), nil, fastConfig(3), func(context.Context) error {
		calls++
		return cause
	})
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, nil, fastConfig(3), func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiterBacksOffOnRateLimit(t *testing.T) {
	lim := NewAdaptiveLimiter(8, 1, 16, 1, 0.5)
	lim.RateLimited()
	assert.Equal(t, 4.0, lim.Limit())
	lim.RateLimited()
	lim.RateLimited()
	lim.RateLimited()
	assert.Equal(t, 1.0, lim.Limit(), "clamped to the minimum")

	// within the cooldown a success must not raise the rate again
	lim.Success()
	assert.Equal(t, 1.0, lim.Limit())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRateLimited(statusErr(429)))
	assert.False(t, IsRateLimited(statusErr(500)))
	assert.True(t, IsServerError(statusErr(502)))
	assert.False(t, IsServerError(errors.New("plain")))
}
