package core

// ClockDriver is the abstract time source that core code uses.
// Ticks run at TicksPerMicrosecond per microsecond and are allowed
// to wrap; all comparisons go through tickLess.
type ClockDriver interface {
	// Ticks returns the current value of the free-running tick counter
	Ticks() uint32

	// Sleep blocks the foreground context for the given number of ticks.
	// Only used by the stop path; never called from interrupt context.
	Sleep(ticks uint32)
}

// Global singleton used by core code.
var clockDriver ClockDriver

// SetClockDriver is called by target-specific code to register its clock.
func SetClockDriver(d ClockDriver) {
	clockDriver = d
}

// MustClock returns the configured clock or panics if missing.
func MustClock() ClockDriver {
	if clockDriver == nil {
		panic("clock driver not configured")
	}
	return clockDriver
}
