package poll

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/activetigger/atstress/internal/common/logging"
	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/internal/testsuite/poll/polltest"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testContext() *runcontext.Context {
	return runcontext.New(context.Background(), logrus.NewEntry(logging.NullLogger))
}

func never(ctx *runcontext.Context) (int, bool, error) {
	return 0, false, nil
}

func TestUntil_TimeoutElapsedWithinOneInterval(t *testing.T) {
	tests := map[string]struct {
		timeout  time.Duration
		interval time.Duration
	}{
		"exact multiple":      {timeout: 9 * time.Second, interval: 3 * time.Second},
		"not a multiple":      {timeout: 10 * time.Second, interval: 3 * time.Second},
		"interval just below": {timeout: 2 * time.Second, interval: 1999 * time.Millisecond},
		"long timeout":        {timeout: 2 * time.Minute, interval: 7 * time.Second},
		"zero timeout":        {timeout: 0, interval: time.Second},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			clk := polltest.NewSteppingClock(baseTime)
			p := Poller{Timeout: tc.timeout, Interval: tc.interval, Clock: clk}

			_, err := Until(testContext(), p, "something", never)

			var timeout *stresserrors.ErrTimeout
			require.ErrorAs(t, err, &timeout)
			assert.Equal(t, "something", timeout.Awaiting)
			assert.Equal(t, tc.timeout, timeout.Timeout)
			assert.GreaterOrEqual(t, timeout.Elapsed, tc.timeout)
			assert.Less(t, timeout.Elapsed, tc.timeout+tc.interval)
			assert.Equal(t, timeout.Elapsed, clk.Since(baseTime))
		})
	}
}

func TestUntil_SucceedsOnKthAttemptWithExactlyKEvaluations(t *testing.T) {
	const interval = 3 * time.Second
	for k := 1; k <= 5; k++ {
		clk := polltest.NewSteppingClock(baseTime)
		p := Poller{Timeout: time.Duration(k) * interval, Interval: interval, Clock: clk}
		evaluations := 0

		value, err := Until(testContext(), p, "kth attempt", func(ctx *runcontext.Context) (int, bool, error) {
			evaluations++
			return evaluations * 10, evaluations == k, nil
		})

		require.NoError(t, err)
		assert.Equal(t, k, evaluations)
		assert.Equal(t, k*10, value)
		assert.Equal(t, time.Duration(k-1)*interval, clk.Since(baseTime))
	}
}

func TestUntil_TransientErrorsAreSwallowed(t *testing.T) {
	clk := polltest.NewSteppingClock(baseTime)
	p := Poller{Timeout: time.Minute, Interval: time.Second, Clock: clk}
	evaluations := 0

	value, err := Until(testContext(), p, "project", func(ctx *runcontext.Context) (string, bool, error) {
		evaluations++
		if evaluations < 3 {
			return "", false, &stresserrors.ErrNotFound{Type: "project", Value: "p"}
		}
		return "ready", true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ready", value)
	assert.Equal(t, 3, evaluations)
}

func TestUntil_ErrorsUntilDeadlineYieldTimeout(t *testing.T) {
	clk := polltest.NewSteppingClock(baseTime)
	p := Poller{Timeout: 5 * time.Second, Interval: time.Second, Clock: clk}

	_, err := Until(testContext(), p, "job", func(ctx *runcontext.Context) (int, bool, error) {
		return 0, false, errors.New("connection refused")
	})

	assert.True(t, stresserrors.IsTimeout(err))
}

func TestUntil_InvalidArguments(t *testing.T) {
	tests := map[string]Poller{
		"zero interval":     {Timeout: time.Second, Interval: 0},
		"negative interval": {Timeout: time.Second, Interval: -time.Second},
		"negative timeout":  {Timeout: -time.Second, Interval: time.Second},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			evaluations := 0
			_, err := Until(testContext(), p, "x", func(ctx *runcontext.Context) (int, bool, error) {
				evaluations++
				return 0, true, nil
			})
			var invalid *stresserrors.ErrInvalidArgument
			assert.ErrorAs(t, err, &invalid)
			assert.Zero(t, evaluations)
		})
	}
}

func TestUntil_CancelledContextStopsBetweenAttempts(t *testing.T) {
	clk := polltest.NewSteppingClock(baseTime)
	p := Poller{Timeout: time.Hour, Interval: time.Second, Clock: clk}
	ctx, cancel := runcontext.WithCancel(testContext())
	evaluations := 0

	_, err := Until(ctx, p, "x", func(ctx *runcontext.Context) (int, bool, error) {
		evaluations++
		if evaluations == 2 {
			cancel()
		}
		return 0, false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, stresserrors.IsTimeout(err))
	assert.Equal(t, 2, evaluations)
}

func TestUntil_CancellationEndsTheWait(t *testing.T) {
	// Time never moves, so only cancellation can end the wait.
	clk := clocktesting.NewFakeClock(baseTime)
	p := Poller{Timeout: time.Hour, Interval: time.Minute, Clock: clk}
	ctx, cancel := runcontext.WithCancel(testContext())
	done := make(chan error, 1)

	go func() {
		_, err := Until(ctx, p, "x", never)
		done <- err
	}()
	require.Eventually(t, clk.HasWaiters, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, stresserrors.IsTimeout(err))
	case <-time.After(5 * time.Second):
		t.Fatal("Until did not return after cancellation")
	}
	assert.Equal(t, time.Duration(0), clk.Since(baseTime))
}

func TestUntil_SuccessAfterCancellationIsStillReturned(t *testing.T) {
	ctx, cancel := runcontext.WithCancel(testContext())
	cancel()
	p := Poller{Timeout: time.Minute, Interval: time.Second, Clock: polltest.NewSteppingClock(baseTime)}

	value, err := Until(ctx, p, "x", func(ctx *runcontext.Context) (int, bool, error) {
		return 7, true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, value)
}
