package domain

import "time"

// Clock provides the current time. Implementations may be real (production)
// or deterministic (testing). The domain defines the interface; adapters
// provide implementations.
type Clock interface {
	// Now returns the current time. The returned time includes both wall clock
	// and monotonic readings when using RealClock.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
// It is a zero-allocation implementation (empty struct).
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// SecondsUntil returns the whole seconds from now until t, rounded up,
// clamped at zero. Used for the next_*_seconds projection fields.
func SecondsUntil(c Clock, t time.Time) uint64 {
	d := t.Sub(c.Now())
	if d <= 0 {
		return 0
	}
	secs := uint64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Ensure RealClock implements Clock at compile time.
var _ Clock = RealClock{}
