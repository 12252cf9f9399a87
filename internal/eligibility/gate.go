package eligibility

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// Gate decides whether a scheduled time has been reached.
type Gate struct {
	clock Clock
}

// NewGate creates a Gate driven by the given clock.
func NewGate(clock Clock) Gate {
	return Gate{clock: clock}
}

// IsDueNow reports whether now is at or after target.
func (g Gate) IsDueNow(target time.Time) bool {
	return !g.clock.Now().Before(target)
}
