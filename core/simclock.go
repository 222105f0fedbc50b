//go:build !tinygo

package core

// SimClock is a virtual ClockDriver for hosted builds and tests. Time
// only moves when Advance is called; each step dispatches the bound
// scheduler at every intermediate timer wake, so pulse trains play out
// deterministically with no real sleeping.
type SimClock struct {
	sched *Scheduler
	now   uint32
}

// NewSimClock creates an unbound virtual clock. Bind the scheduler it
// should advance with Drive before moving time.
func NewSimClock() *SimClock {
	return &SimClock{}
}

// Drive binds the scheduler whose timers Advance dispatches. Split
// from the constructor because the engine wants its clock at
// construction while the clock wants the engine's scheduler.
func (c *SimClock) Drive(sched *Scheduler) {
	c.sched = sched
}

// Ticks returns the current virtual time
func (c *SimClock) Ticks() uint32 {
	return c.now
}

// Sleep advances virtual time, dispatching due timers along the way
func (c *SimClock) Sleep(ticks uint32) {
	c.Advance(ticks)
}

// Advance moves virtual time forward by ticks, stopping at every
// timer wake in between to dispatch it at its exact due time.
func (c *SimClock) Advance(ticks uint32) {
	end := c.now + ticks
	if c.sched == nil {
		c.now = end
		return
	}
	for {
		wake, ok := c.sched.NextWake()
		if !ok || tickLess(end, wake) {
			break
		}
		if tickLess(c.now, wake) {
			c.now = wake
		}
		c.sched.Dispatch(c.now)
	}
	c.now = end
}
