// Package poll implements the bounded wait loops the orchestrators use to
// observe platform state: exponential backoff capped at a configured
// interval, an overall budget, and context cancellation.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrBudgetExceeded is returned when the budget elapses before the probe
// reports done. Callers decide whether that is fatal (deletion wait) or
// informational (restore status wait).
var ErrBudgetExceeded = errors.New("poll: budget exceeded")

var errNotDone = errors.New("poll: not done")

// Config bounds a poll loop. Interval caps the backoff between probes;
// Budget caps the total wait.
type Config struct {
	Interval time.Duration
	Budget   time.Duration
}

// Probe observes the awaited state once. A returned error aborts the loop
// immediately; probes that want to keep waiting on a transient failure
// swallow it and return done=false.
type Probe func(ctx context.Context) (bool, error)

// Until probes until done, the budget elapses, or the context is
// cancelled. The first probe runs immediately.
func Until(ctx context.Context, cfg Config, probe Probe) error {
	initial := cfg.Interval / 10
	if initial < time.Millisecond {
		initial = time.Millisecond
	}
	if initial > time.Second {
		initial = time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = cfg.Interval
	b.MaxElapsedTime = cfg.Budget

	op := func() error {
		done, err := probe(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if done {
			return nil
		}
		return errNotDone
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if errors.Is(err, errNotDone) {
		return ErrBudgetExceeded
	}
	return err
}
