package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/zeroecho/internal/errs"
)

func testPolicy(maxRetries int) (*Policy, *[]time.Duration) {
	var slept []time.Duration
	return &Policy{
		MaxRetries: maxRetries,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Jitter:     DefaultJitter,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}, &slept
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p, slept := testPolicy(3)
	calls := 0

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.NetworkTransient, "fetch", "timeout")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	p, slept := testPolicy(3)
	calls := 0
	var last error

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		last = errs.New(errs.NetworkTransient, "fetch", "attempt failed")
		return last
	}, nil)

	assert.Equal(t, 4, calls)
	assert.Same(t, last, err)
	assert.Len(t, *slept, 3)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	p, slept := testPolicy(3)
	calls := 0
	blocked := errs.New(errs.PolicyBlocked, "robots", "disallowed")

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return blocked
	}, nil)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, blocked)
	assert.Empty(t, *slept)
}

func TestDo_CustomClassifier(t *testing.T) {
	p, _ := testPolicy(2)
	calls := 0
	plain := errors.New("flaky")

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return plain
	}, func(error) bool { return true })

	assert.Equal(t, 3, calls)
	assert.Equal(t, plain, err)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Policy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	calls := 0
	transient := errs.New(errs.NetworkTransient, "fetch", "timeout")

	cancel()
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return transient
	}, func(error) bool { return true })

	assert.Equal(t, 1, calls)
	assert.Equal(t, transient, err)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	p, _ := testPolicy(1)
	calls := 0

	v, err := DoValue(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errs.New(errs.StoreUnavailable, "get", "down")
		}
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPolicy_DelayBounds(t *testing.T) {
	p := &Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2}

	tests := []struct {
		attempt int
		nominal time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			d := p.Delay(tt.attempt)
			assert.GreaterOrEqual(t, float64(d), float64(tt.nominal)*0.8-1)
			assert.LessOrEqual(t, float64(d), float64(tt.nominal)*1.2+1)
		}
	}

	noJitter := &Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 400*time.Millisecond, noJitter.Delay(2))
}
