// Package retry runs an operation a bounded number of times with a fixed
// schedule of delays between attempts.
//
// Only idempotent calls (status checks, result fetches, token refreshes that
// failed in transport) go through here. Submissions and uploads do not.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy lists the wait before each attempt. The first entry is normally 0.
type Policy struct {
	Delays []time.Duration
}

// Default is three attempts: immediately, after 500ms, after 2s.
var Default = Policy{Delays: []time.Duration{0, 500 * time.Millisecond, 2 * time.Second}}

// None performs a single attempt.
var None = Policy{Delays: []time.Duration{0}}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops retrying and returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context ends,
// or the policy runs out of attempts. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	delays := p.Delays
	if len(delays) == 0 {
		delays = None.Delays
	}

	var err error
	for attempt, delay := range delays {
		if attempt > 0 || delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				if err != nil {
					return err
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
	}
	return err
}
