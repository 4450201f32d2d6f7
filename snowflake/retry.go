// Package snowflake - retry.go bounds how long a caller waits out sequence
// exhaustion.

package snowflake

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// Default retry settings. A sequence overflow clears on the next
// millisecond, so a handful of 1ms waits is enough in practice.
const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = time.Millisecond
)

// Generator issues IDs one at a time. *Node implements it.
type Generator interface {
	Next() (ID, error)
}

// RetryPolicy controls how GenerateWithRetry handles SequenceOverflow.
//
// Only sequence exhaustion is retried. Clock regressions and timestamp
// overflows do not resolve by waiting a millisecond and are returned as is.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// call makes at most MaxRetries+1 attempts. Zero disables retrying.
	MaxRetries int

	// Delay is the wait between attempts.
	Delay time.Duration

	// Clock drives the wait. nil means the real clock.
	Clock clock.Clock
}

// DefaultRetryPolicy returns 5 retries spaced 1ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultRetryDelay,
	}
}

// Validate checks the policy.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return NewConfigError("MaxRetries", p.MaxRetries, "must not be negative", "must be >= 0")
	}
	if p.Delay < 0 {
		return NewConfigError("Delay", p.Delay, "must not be negative", "duration must be >= 0")
	}
	return nil
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxRetries)),
		ctx,
	)
}

// GenerateWithRetry calls gen.Next until it succeeds, fails with anything
// other than a sequence overflow, or runs out of attempts.
//
// Errors:
//   - ClockRegression, TimestampOverflow and anything else: returned after the
//     first attempt that produced them
//   - still overflowing after MaxRetries+1 attempts: *RetryError, matching
//     ErrRetriesExhausted and the last *OverflowError
//   - ctx done while waiting: ctx.Err()
//
// Waiting blocks only the calling goroutine.
func GenerateWithRetry(ctx context.Context, gen Generator, policy RetryPolicy) (ID, error) {
	if err := policy.Validate(); err != nil {
		return 0, err
	}

	attempts := 0
	op := func() (ID, error) {
		attempts++
		id, err := gen.Next()
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrSequenceOverflow) {
			return 0, err
		}
		return 0, backoff.Permanent(err)
	}

	var timer backoff.Timer
	if policy.Clock != nil {
		timer = &clockTimer{clock: policy.Clock}
	}

	id, err := backoff.RetryNotifyWithTimerAndData(op, policy.backOff(ctx), nil, timer)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, ErrSequenceOverflow) {
		return 0, &RetryError{Attempts: attempts, Last: err}
	}
	return 0, err
}

// clockTimer adapts a clock.Clock timer to backoff.Timer.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
