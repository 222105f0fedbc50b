package core

import (
	"errors"

	"servopulse/protocol"
)

// boundServos is the engine driven by the wire command set (set by main)
var boundServos *Servos

// BindServos attaches an engine to the servo command handlers.
func BindServos(s *Servos) {
	boundServos = s
}

// InitServoCommands registers the servo command set and its dictionary
// constants. Call after InitCoreCommands.
func InitServoCommands() {
	RegisterCommand("config_servos", "pins=%*s", handleConfigServos)
	RegisterCommand("servos_stop", "", handleServosStop)
	RegisterCommand("servo_set_target", "channel=%c target=%hu", handleSetTarget)
	RegisterCommand("servo_set_target_ticks", "channel=%c target=%hu", handleSetTargetTicks)
	RegisterCommand("servo_set_speed", "channel=%c speed=%hu", handleSetSpeed)
	RegisterCommand("servo_get_state", "channel=%c", handleGetState)

	// Response messages (MCU -> Host)
	RegisterResponse("servo_state", "channel=%c target=%hu position=%hu speed=%hu moving=%c")

	RegisterConstant("SERVO_TICKS_PER_MICROSECOND", uint32(TicksPerMicrosecond))
	RegisterConstant("SERVO_MAX_TARGET", uint32(MaxTargetMicroseconds))
	RegisterConstant("SERVO_PERIOD_TICKS", uint32(PeriodTicks))
	RegisterConstant("SERVO_MAX_CHANNELS", uint32(MaxChannels))
}

func mustBoundServos() (*Servos, error) {
	if boundServos == nil {
		return nil, errors.New("no servo engine bound")
	}
	return boundServos, nil
}

// handleConfigServos assigns pins and starts pulse generation. An
// empty pin payload resumes the previous assignment.
func handleConfigServos(data *[]byte) error {
	s, err := mustBoundServos()
	if err != nil {
		return err
	}

	raw, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	var pins []GPIOPin
	if len(raw) > 0 {
		pins = make([]GPIOPin, len(raw))
		for i, b := range raw {
			pins[i] = GPIOPin(b)
		}
	}

	return s.Start(pins)
}

func handleServosStop(data *[]byte) error {
	s, err := mustBoundServos()
	if err != nil {
		return err
	}
	s.Stop()
	return nil
}

func handleSetTarget(data *[]byte) error {
	s, err := mustBoundServos()
	if err != nil {
		return err
	}

	ch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	target, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if target > 0xFFFF {
		return errors.New("target does not fit in 16 bits")
	}

	return s.SetTarget(uint8(ch), uint16(target))
}

func handleSetTargetTicks(data *[]byte) error {
	s, err := mustBoundServos()
	if err != nil {
		return err
	}

	ch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	target, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if target > 0xFFFF {
		return errors.New("target does not fit in 16 bits")
	}

	return s.SetTargetTicks(uint8(ch), uint16(target))
}

func handleSetSpeed(data *[]byte) error {
	s, err := mustBoundServos()
	if err != nil {
		return err
	}

	ch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	speed, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if speed > 0xFFFF {
		return errors.New("speed does not fit in 16 bits")
	}

	return s.SetSpeed(uint8(ch), uint16(speed))
}

// handleGetState reports one channel's table entry
func handleGetState(data *[]byte) error {
	s, err := mustBoundServos()
	if err != nil {
		return err
	}

	ch64, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	ch := uint8(ch64)

	// One snapshot so moving never disagrees with the reported pair
	st, err := s.State(ch)
	if err != nil {
		return err
	}
	moving := uint32(0)
	if st.Position != st.Target {
		moving = 1
	}

	SendResponse("servo_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(st.Target))
		protocol.EncodeVLQUint(output, uint32(st.Position))
		protocol.EncodeVLQUint(output, uint32(st.Speed))
		protocol.EncodeVLQUint(output, moving)
	})

	return nil
}
