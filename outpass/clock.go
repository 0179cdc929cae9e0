package outpass

import "time"

// =============================================================================
// CLOCK - Injected time source
// =============================================================================
// Every expiry and grace-period guard compares against a Clock rather than
// reading the system clock directly, so boundary conditions are testable.

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a closure to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
