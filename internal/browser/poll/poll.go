// File: internal/browser/poll/poll.go
package poll

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy bounds a retry loop by wall-clock time and shapes the wait between attempts.
type Policy struct {
	// Timeout is the total budget measured from the first attempt.
	Timeout time.Duration
	// InitialInterval is the wait after the first failed attempt. Zero polls
	// back to back.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
	// Multiplier grows the wait after each failure (1.5 means +50%).
	Multiplier float64
	// Jitter randomizes each wait between half and the full interval.
	Jitter bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy(timeout time.Duration) Policy {
	return Policy{
		Timeout:         timeout,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      1.5,
		Jitter:          true,
	}
}

// WithTimeout returns a copy of p with a different budget.
func (p Policy) WithTimeout(timeout time.Duration) Policy {
	p.Timeout = timeout
	return p
}

// Interval returns the wait that follows the given 1-based failed attempt.
func (p Policy) Interval(attempt int) time.Duration {
	if p.InitialInterval <= 0 {
		return 0
	}
	factor := p.Multiplier
	if factor < 1 {
		factor = 1
	}
	interval := float64(p.InitialInterval) * math.Pow(factor, float64(attempt-1))
	if p.MaxInterval > 0 && (interval > float64(p.MaxInterval) || math.IsInf(interval, 0)) {
		interval = float64(p.MaxInterval)
	}

	d := time.Duration(interval)
	if p.Jitter && d > 0 {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// Status describes how a poll ended.
type Status int

const (
	// Succeeded means an attempt returned without error.
	Succeeded Status = iota
	// Exhausted means every attempt failed with a retryable error until the deadline.
	Exhausted
	// Aborted means an attempt failed with a non-retryable error, or the
	// caller's context ended.
	Aborted
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Outcome is the result of Run. On anything but success Value is the zero
// value and Err is the last error observed.
type Outcome[T any] struct {
	Value    T
	Status   Status
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// OK reports whether the poll succeeded.
func (o Outcome[T]) OK() bool { return o.Status == Succeeded }

// Func is one attempt. The context it receives expires at the poll deadline.
type Func[T any] func(ctx context.Context) (T, error)

// Classifier reports whether a failed attempt should be retried.
type Classifier func(err error) bool

// Run calls op until it succeeds, retry rejects its error, or p.Timeout has
// elapsed since the first attempt. At least one attempt is always made.
func Run[T any](ctx context.Context, p Policy, op Func[T], retry Classifier) Outcome[T] {
	start := time.Now()
	deadline := start.Add(p.Timeout)

	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var (
		out  Outcome[T]
		last error
	)
	finish := func(status Status, err error) Outcome[T] {
		out.Status = status
		out.Err = err
		out.Elapsed = time.Since(start)
		return out
	}

	for {
		out.Attempts++
		value, err := op(attemptCtx)
		if err == nil {
			out.Value = value
			return finish(Succeeded, nil)
		}

		// The caller gave up.
		if ctx.Err() != nil {
			if !isContextErr(err) {
				last = err
			}
			return finish(Aborted, joinLast(ctx.Err(), last))
		}
		// The attempt was cut short by our own deadline. That is not a new
		// cause, so the previous one is kept.
		if isContextErr(err) && attemptCtx.Err() != nil {
			if last == nil {
				last = err
			}
			return finish(Exhausted, last)
		}

		last = err
		if retry != nil && !retry(err) {
			return finish(Aborted, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return finish(Exhausted, last)
		}

		wait := p.Interval(out.Attempts)
		if wait > remaining {
			wait = remaining
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return finish(Aborted, joinLast(ctx.Err(), last))
			}
		}
		if !time.Now().Before(deadline) {
			return finish(Exhausted, last)
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func joinLast(ctxErr, last error) error {
	if last == nil {
		return ctxErr
	}
	return errors.Join(ctxErr, last)
}
