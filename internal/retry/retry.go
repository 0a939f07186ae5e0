// Package retry runs short operations with a bounded number of attempts and
// jittered exponential backoff between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrAttemptsExhausted is wrapped together with the last operation error when
// every attempt failed with a retryable error.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Config contains retry configuration.
type Config struct {
	// MaxAttempts is the total number of attempts including the first one (minimum 1).
	MaxAttempts int
	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
	// Multiplier grows the interval after each attempt.
	Multiplier float64
	// JitterFactor in [0,1] randomizes each interval by ±factor.
	JitterFactor float64
}

// DefaultConfig suits in-process lock contention: 3 attempts, 5ms, 10ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialInterval < 0 {
		c.InitialInterval = 0
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	c.JitterFactor = math.Max(0, math.Min(1, c.JitterFactor))
	return c
}

// Operation is the function to be retried.
type Operation func(ctx context.Context) error

// Callback is invoked before waiting for the next attempt.
type Callback func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns an error for which retryable reports
// false, the context ends, or cfg.MaxAttempts is reached. It returns the number
// of attempts made. When attempts run out the returned error wraps both
// ErrAttemptsExhausted and the last error.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, op Operation, onRetry Callback) (int, error) {
	cfg = cfg.normalized()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w (last error: %w)", err, lastErr)
			}
			return attempt - 1, err
		}
		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		if retryable == nil || !retryable(err) {
			return attempt, err
		}
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}
		wait := cfg.interval(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w (last error: %w)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return cfg.MaxAttempts, fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr)
}

// interval returns the wait after the given 1-based attempt.
func (c Config) interval(attempt int) time.Duration {
	d := float64(c.InitialInterval) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.JitterFactor > 0 {
		d += (rand.Float64()*2 - 1) * d * c.JitterFactor
	}
	d = math.Min(d, float64(c.MaxInterval))
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
