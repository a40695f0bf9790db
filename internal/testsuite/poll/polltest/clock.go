// Package polltest provides a clock for driving pollers in tests without real waiting.
package polltest

import (
	"time"

	clocktesting "k8s.io/utils/clock/testing"
)

// SteppingClock is a fake clock that moves forward by d whenever something waits on it for d, so a poller sees
// its intervals elapse immediately. Time never moves otherwise.
type SteppingClock struct {
	*clocktesting.FakeClock
}

func NewSteppingClock(t time.Time) *SteppingClock {
	return &SteppingClock{FakeClock: clocktesting.NewFakeClock(t)}
}

func (c *SteppingClock) After(d time.Duration) <-chan time.Time {
	ch := c.FakeClock.After(d)
	c.FakeClock.Step(d)
	return ch
}
