package core

// Servo pulse quantities are measured in ticks of 1/24 microsecond.
const (
	// TicksPerMicrosecond is the tick rate of the pulse clock
	TicksPerMicrosecond = 24

	// MaxTargetMicroseconds is the widest pulse a channel may emit
	MaxTargetMicroseconds = 2500

	// MaxTargetTicks is MaxTargetMicroseconds in ticks
	MaxTargetTicks = MaxTargetMicroseconds * TicksPerMicrosecond

	// PeriodTicks is the pulse repetition period (~19.11 ms)
	PeriodTicks = 0x70000

	// stopDrainTicks bounds how long Stop waits for in-flight falling
	// edges. The widest possible pulse is 2500 us; 2800 us leaves
	// headroom for dispatch latency.
	stopDrainTicks = 2800 * TicksPerMicrosecond

	// stopPollTicks is the polling interval of Stop's drain loop
	stopPollTicks = 100 * TicksPerMicrosecond
)

// TicksFromUS converts microseconds to pulse ticks
func TicksFromUS(us uint16) uint16 {
	return us * TicksPerMicrosecond
}

// TicksToUS converts pulse ticks to whole microseconds, truncating
func TicksToUS(ticks uint16) uint16 {
	return ticks / TicksPerMicrosecond
}
