// Package fallback provides the two small control-flow primitives the rest
// of the automation core is built from: an ordered try-in-order combinator
// for candidate lists, and a deadline-bounded polling loop. Both check for
// cancellation at every iteration boundary.
package fallback

import (
	"context"
	"errors"
	"time"
)

// ErrDeadline is returned by Poll when the deadline elapses before the
// predicate holds. It is deliberately distinct from context cancellation so
// callers can tell "gave up" apart from "was told to stop".
var ErrDeadline = errors.New("fallback: deadline elapsed")

// Candidate is one alternative in an ordered list. ok=false means "did not
// match, try the next one"; a non-nil error is treated the same way and is
// reported to the caller's observer, never propagated.
type Candidate[T any] func(ctx context.Context) (val T, ok bool, err error)

// First evaluates candidates in order and returns the first hit. onErr, when
// non-nil, observes per-candidate errors (for debug logging); errors never
// stop the scan. Returns the zero value and false when the list is exhausted
// or the context is cancelled.
func First[T any](ctx context.Context, candidates []Candidate[T], onErr func(i int, err error)) (T, bool) {
	var zero T
	for i, c := range candidates {
		if ctx.Err() != nil {
			return zero, false
		}
		val, ok, err := c(ctx)
		if err != nil {
			if onErr != nil {
				onErr(i, err)
			}
			continue
		}
		if ok {
			return val, true
		}
	}
	return zero, false
}

// Poll invokes fn at the given interval until it reports true, the deadline
// elapses, or ctx is cancelled. fn errors are swallowed and the poll
// continues; only the final outcome matters. The first invocation happens
// immediately, not after one interval.
func Poll(ctx context.Context, interval, deadline time.Duration, fn func(ctx context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if pollCtx.Err() != nil {
			// Distinguish our own deadline from caller cancellation.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrDeadline
		}

		ok, err := fn(pollCtx)
		if err == nil && ok {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrDeadline
		case <-ticker.C:
		}
	}
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
