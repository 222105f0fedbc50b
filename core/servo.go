package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the servo engine. Wrap with %w so callers
// can match with errors.Is.
var (
	// ErrConfig indicates an invalid pin assignment or lifecycle misuse
	ErrConfig = errors.New("servo: invalid configuration")

	// ErrRange indicates a channel index or magnitude out of range
	ErrRange = errors.New("servo: value out of range")
)

// MaxChannels is the most pulse channels one engine can drive
const MaxChannels = 6

// All channels at full width must fit inside one period, otherwise a
// falling edge could land after the next rising edge. Compile-time
// check: underflows if the capacity invariant is violated.
const _ = uint32(PeriodTicks - MaxChannels*MaxTargetTicks)

// Lifecycle states
const (
	stateStopped = iota
	stateStarting
	stateRunning
	stateStopping
)

// channel is one entry of the pulse table. All quantities in ticks.
type channel struct {
	pin      GPIOPin
	target   uint16
	position uint16
	speed    uint16 // max position change per period; 0 = unlimited
}

// Servos generates up to MaxChannels RC servo pulse trains from a
// single recurring period timer. One instance owns its pin table,
// its timers and its scheduler.
//
// Concurrency model: the period and edge handlers run in interrupt
// context (under the scheduler's dispatch mask); every foreground
// read-modify-write takes the same mask for its critical section.
// Only Stop blocks.
type Servos struct {
	gpio  GPIODriver
	clock ClockDriver
	sched Scheduler

	channels [MaxChannels]channel
	count    uint8
	state    uint8

	periodTimer Timer
	edgeTimers  [MaxChannels]Timer

	// pendingEdges counts scheduled falling edges not yet dispatched;
	// Stop drains it before forcing pins low
	pendingEdges uint8
}

// NewServos creates an engine bound to the given drivers.
func NewServos(gpio GPIODriver, clock ClockDriver) *Servos {
	s := &Servos{gpio: gpio, clock: clock}
	s.periodTimer.Handler = s.periodEvent
	for i := range s.edgeTimers {
		ch := uint8(i)
		s.edgeTimers[i].Handler = func(t *Timer) uint8 {
			return s.edgeEvent(ch, t)
		}
	}
	return s
}

// Scheduler exposes the engine's timer list so the platform main loop
// can dispatch it from its timer interrupt.
func (s *Servos) Scheduler() *Scheduler {
	return &s.sched
}

// Start assigns pins to channels and begins pulse generation. Passing
// nil resumes with the previous assignment: the table, including every
// target, position and speed, is left untouched and only the period
// timer is re-enabled.
//
// A fresh assignment is all-or-nothing: capacity, duplicates and pin
// validity are checked before any pin is configured or any state
// changes, so a failed Start leaves the engine exactly as it was.
func (s *Servos) Start(pins []GPIOPin) error {
	if s.state != stateStopped {
		return fmt.Errorf("%w: already started", ErrConfig)
	}

	if pins == nil {
		if s.count == 0 {
			return fmt.Errorf("%w: no previous pin assignment to resume", ErrConfig)
		}
	} else {
		if len(pins) == 0 || len(pins) > MaxChannels {
			return fmt.Errorf("%w: need 1..%d pins, got %d", ErrConfig, MaxChannels, len(pins))
		}
		for i, pin := range pins {
			for j := 0; j < i; j++ {
				if pins[j] == pin {
					return fmt.Errorf("%w: pin %d assigned twice", ErrConfig, pin)
				}
			}
			if err := s.gpio.CheckOutput(pin); err != nil {
				return fmt.Errorf("%w: pin %d: %s", ErrConfig, pin, err.Error())
			}
		}

		s.state = stateStarting
		for _, pin := range pins {
			if err := s.gpio.ConfigureOutput(pin); err != nil {
				s.state = stateStopped
				return fmt.Errorf("%w: pin %d: %s", ErrConfig, pin, err.Error())
			}
			_ = s.gpio.SetPin(pin, false)
		}

		state := disableInterrupts()
		s.count = uint8(len(pins))
		for i := range s.channels {
			s.channels[i] = channel{}
			if i < len(pins) {
				s.channels[i].pin = pins[i]
			}
		}
		restoreInterrupts(state)
	}

	s.sched.Remove(&s.periodTimer)
	s.periodTimer.WakeTime = s.clock.Ticks() + PeriodTicks
	s.sched.Schedule(&s.periodTimer)
	s.state = stateRunning
	return nil
}

// Stop halts pulse generation. It waits for any in-flight high pulse
// to complete its committed falling edge (bounded, under 3 ms), then
// forces every configured output low and cancels the period timer.
// Targets, positions and speeds survive for a later Start(nil).
func (s *Servos) Stop() {
	if s.state != stateRunning {
		return
	}

	state := disableInterrupts()
	s.state = stateStopping
	restoreInterrupts(state)

	// Let already scheduled falling edges fire; never truncate a pulse.
	// Command handling and timer dispatch share one context on every
	// target, so nothing else pumps the scheduler while Stop blocks;
	// the drain dispatches due timers itself.
	deadline := s.clock.Ticks() + stopDrainTicks
	for {
		s.sched.Dispatch(s.clock.Ticks())
		state = disableInterrupts()
		pending := s.pendingEdges
		restoreInterrupts(state)
		if pending == 0 || !tickLess(s.clock.Ticks(), deadline) {
			break
		}
		s.clock.Sleep(stopPollTicks)
	}

	state = disableInterrupts()
	s.sched.remove(&s.periodTimer)
	for i := range s.edgeTimers {
		s.sched.remove(&s.edgeTimers[i])
	}
	s.pendingEdges = 0
	restoreInterrupts(state)

	for i := uint8(0); i < s.count; i++ {
		_ = s.gpio.SetPin(s.channels[i].pin, false)
	}
	RecordTiming(EvtStop, 0, s.clock.Ticks(), 0, 0)
	s.state = stateStopped
}

// Started reports whether pulse generation is active.
func (s *Servos) Started() bool {
	return s.state == stateRunning
}

// Moving reports whether any channel still has to ramp toward its
// target.
func (s *Servos) Moving() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := uint8(0); i < s.count; i++ {
		if s.channels[i].position != s.channels[i].target {
			return true
		}
	}
	return false
}

// SetTarget sets a channel's target pulse width in microseconds.
func (s *Servos) SetTarget(ch uint8, us uint16) error {
	if us > MaxTargetMicroseconds {
		return fmt.Errorf("%w: target %d us exceeds %d", ErrRange, us, MaxTargetMicroseconds)
	}
	return s.SetTargetTicks(ch, TicksFromUS(us))
}

// SetTargetTicks sets a channel's target pulse width in ticks. The
// position jumps to the target immediately when the channel has no
// speed limit, when the new target is 0 (kill the pulse now), or when
// the channel was parked at 0; otherwise it ramps one clamped step
// per period.
func (s *Servos) SetTargetTicks(ch uint8, ticks uint16) error {
	if ch >= s.count {
		return fmt.Errorf("%w: channel %d not configured", ErrRange, ch)
	}
	if ticks > MaxTargetTicks {
		return fmt.Errorf("%w: target %d ticks exceeds %d", ErrRange, ticks, MaxTargetTicks)
	}

	state := disableInterrupts()
	c := &s.channels[ch]
	c.target = ticks
	if c.speed == 0 || c.target == 0 || c.position == 0 {
		c.position = c.target
	}
	restoreInterrupts(state)
	return nil
}

// GetTarget returns a channel's target in whole microseconds.
func (s *Servos) GetTarget(ch uint8) (uint16, error) {
	ticks, err := s.GetTargetTicks(ch)
	return TicksToUS(ticks), err
}

// GetTargetTicks returns a channel's target in ticks.
func (s *Servos) GetTargetTicks(ch uint8) (uint16, error) {
	if ch >= s.count {
		return 0, fmt.Errorf("%w: channel %d not configured", ErrRange, ch)
	}
	state := disableInterrupts()
	ticks := s.channels[ch].target
	restoreInterrupts(state)
	return ticks, nil
}

// Position returns a channel's current position in whole microseconds.
func (s *Servos) Position(ch uint8) (uint16, error) {
	ticks, err := s.PositionTicks(ch)
	return TicksToUS(ticks), err
}

// PositionTicks returns a channel's current position in ticks.
func (s *Servos) PositionTicks(ch uint8) (uint16, error) {
	if ch >= s.count {
		return 0, fmt.Errorf("%w: channel %d not configured", ErrRange, ch)
	}
	state := disableInterrupts()
	ticks := s.channels[ch].position
	restoreInterrupts(state)
	return ticks, nil
}

// SetSpeed sets a channel's maximum position change per period, in
// ticks. 0 disables the speed limit.
func (s *Servos) SetSpeed(ch uint8, speed uint16) error {
	if ch >= s.count {
		return fmt.Errorf("%w: channel %d not configured", ErrRange, ch)
	}
	state := disableInterrupts()
	s.channels[ch].speed = speed
	restoreInterrupts(state)
	return nil
}

// GetSpeed returns a channel's speed limit in ticks per period.
func (s *Servos) GetSpeed(ch uint8) (uint16, error) {
	if ch >= s.count {
		return 0, fmt.Errorf("%w: channel %d not configured", ErrRange, ch)
	}
	state := disableInterrupts()
	speed := s.channels[ch].speed
	restoreInterrupts(state)
	return speed, nil
}

// ChannelState is one channel's table entry, all quantities in ticks.
type ChannelState struct {
	Target   uint16
	Position uint16
	Speed    uint16
}

// State returns one channel's table entry read in a single critical
// section, so target and position come from the same ramp step.
func (s *Servos) State(ch uint8) (ChannelState, error) {
	if ch >= s.count {
		return ChannelState{}, fmt.Errorf("%w: channel %d not configured", ErrRange, ch)
	}
	state := disableInterrupts()
	c := s.channels[ch]
	restoreInterrupts(state)
	return ChannelState{Target: c.target, Position: c.position, Speed: c.speed}, nil
}

// rampStep advances position one period toward target, clamped to the
// speed limit. speed 0 means no limit.
func rampStep(position, target, speed uint16) uint16 {
	if speed == 0 {
		return target
	}
	diff := int32(target) - int32(position)
	if diff > int32(speed) {
		diff = int32(speed)
	} else if diff < -int32(speed) {
		diff = -int32(speed)
	}
	return uint16(int32(position) + diff)
}

// periodEvent runs at every period boundary in interrupt context.
// It advances every channel's ramp, then raises each active output
// and schedules its falling edge position ticks after the boundary.
// Ascending channel order plus FIFO tie handling in the scheduler
// gives a deterministic edge order.
func (s *Servos) periodEvent(t *Timer) uint8 {
	if s.state != stateRunning {
		return SF_DONE
	}

	RecordTiming(EvtPeriod, 0, t.WakeTime, uint32(s.count), 0)

	for i := uint8(0); i < s.count; i++ {
		c := &s.channels[i]
		c.position = rampStep(c.position, c.target, c.speed)
		if c.position == 0 {
			continue
		}
		_ = s.gpio.SetPin(c.pin, true)
		et := &s.edgeTimers[i]
		et.WakeTime = t.WakeTime + uint32(c.position)
		s.sched.insert(et)
		s.pendingEdges++
		RecordTiming(EvtPulseStart, i, t.WakeTime, uint32(c.position), 0)
	}

	t.WakeTime += PeriodTicks
	return SF_RESCHEDULE
}

// edgeEvent drives one channel's falling edge in interrupt context.
func (s *Servos) edgeEvent(ch uint8, t *Timer) uint8 {
	_ = s.gpio.SetPin(s.channels[ch].pin, false)
	if s.pendingEdges > 0 {
		s.pendingEdges--
	}
	RecordTiming(EvtPulseEnd, ch, t.WakeTime, 0, 0)
	return SF_DONE
}
