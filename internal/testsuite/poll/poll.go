// Package poll turns asynchronous state changes on the remote service into a synchronous, bounded wait.
package poll

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/common/stresserrors"
)

// Condition reports whether the awaited state has been reached, together with the observed value.
// A returned error is treated as "not yet".
type Condition[T any] func(ctx *runcontext.Context) (T, bool, error)

// Poller evaluates a condition every Interval until it holds or Timeout has elapsed.
type Poller struct {
	Timeout  time.Duration
	Interval time.Duration
	// Defaults to the real clock.
	Clock clock.Clock
}

func (p Poller) Validate() error {
	if p.Interval <= 0 {
		return errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "interval",
			Value:   p.Interval.String(),
			Message: "poll interval must be positive",
		})
	}
	if p.Timeout < 0 {
		return errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "timeout",
			Value:   p.Timeout.String(),
			Message: "timeout must not be negative",
		})
	}
	return nil
}

func (p Poller) clock() clock.Clock {
	if p.Clock == nil {
		return clock.RealClock{}
	}
	return p.Clock
}

// Until evaluates condition until it holds, returning the value observed by the successful evaluation.
//
// The deadline is fixed when Until is called. The condition is evaluated at least once; after each unsuccessful
// evaluation Until waits exactly Interval, unless the deadline has already passed, in which case it returns an
// *stresserrors.ErrTimeout describing awaiting. Cancellation of ctx ends the wait early; an evaluation in
// progress is never interrupted by Until itself.
func Until[T any](ctx *runcontext.Context, p Poller, awaiting string, condition Condition[T]) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	clk := p.clock()
	start := clk.Now()
	deadline := start.Add(p.Timeout)
	for attempt := 1; ; attempt++ {
		value, ok, err := condition(ctx)
		if err != nil {
			ctx.Log.WithError(err).Debugf("attempt %d waiting for %s failed", attempt, awaiting)
		} else if ok {
			return value, nil
		}
		if !clk.Now().Before(deadline) {
			return zero, errors.WithStack(&stresserrors.ErrTimeout{
				Awaiting: awaiting,
				Timeout:  p.Timeout,
				Elapsed:  clk.Since(start),
			})
		}
		if err := ctx.Err(); err != nil {
			return zero, errors.Wrapf(err, "waiting for %s", awaiting)
		}
		select {
		case <-clk.After(p.Interval):
		case <-ctx.Done():
			return zero, errors.Wrapf(ctx.Err(), "waiting for %s", awaiting)
		}
	}
}
