// Package retry runs bounded attempts with exponential backoff and reports a
// typed outcome instead of an error alone.
package retry

import (
	"context"
	"errors"
	"time"
)

// Status is the terminal state of a retry loop.
type Status int

const (
	Succeeded Status = iota
	Exhausted
	Canceled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Policy bounds a retry loop. Delays double from Initial up to Max.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Outcome reports how a loop ended. Err is the last attempt's error, or the
// context error when canceled.
type Outcome struct {
	Status   Status
	Attempts int
	Err      error
}

func (o Outcome) OK() bool { return o.Status == Succeeded }

// ErrStop wraps an error that must not be retried.
var ErrStop = errors.New("retry: permanent failure")

// Permanent marks err so Do returns after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() []error {
	return []error{p.err, ErrStop}
}

// Do calls fn until it returns nil, the attempts run out, fn returns a
// Permanent error, or ctx ends.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) Outcome {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.Initial
	if delay < 0 {
		delay = 0
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Status: Canceled, Attempts: attempt - 1, Err: err}
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return Outcome{Status: Succeeded, Attempts: attempt}
		}
		if errors.Is(lastErr, ErrStop) {
			return Outcome{Status: Exhausted, Attempts: attempt, Err: lastErr}
		}
		if attempt == attempts {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Outcome{Status: Canceled, Attempts: attempt, Err: ctx.Err()}
			case <-timer.C:
			}
			delay *= 2
			if policy.Max > 0 && delay > policy.Max {
				delay = policy.Max
			}
		}
	}
	return Outcome{Status: Exhausted, Attempts: attempts, Err: lastErr}
}
