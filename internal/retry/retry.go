// Package retry runs networked calls with exponential backoff and jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jonathan/zeroecho/internal/errs"
)

// Default backoff settings.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
	DefaultJitter     = 0.2
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Policy describes how many times and how long to wait between attempts.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the +/- fraction applied to each delay.
	Jitter float64
	// Sleep is injectable so tests need not wait.
	Sleep SleepFunc

	mu   sync.Mutex
	rand *rand.Rand
}

// DefaultPolicy returns the standard backoff policy.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

// Delay returns the wait before retry number attempt (0-based), jitter included.
func (p *Policy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		base *= 1 + (p.random()*2-1)*p.Jitter
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func (p *Policy) random() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rand == nil {
		p.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.rand.Float64()
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error from fn is returned unchanged. A nil classify
// uses errs.Retryable.
func Do(ctx context.Context, p *Policy, fn func(ctx context.Context) error, classify Classifier) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, classify)
	return err
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error), classify Classifier) (T, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	if classify == nil {
		classify = errs.Retryable
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.Delay(attempt-1)); err != nil {
				return zero, lastErr
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !classify(err) || ctx.Err() != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
