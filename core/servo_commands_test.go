package core

import (
	"testing"

	"servopulse/protocol"
)

// wireFixture registers the command set and binds a fresh sim-backed
// engine plus an output transport for responses
type wireFixture struct {
	servos *Servos
	gpio   *recordingGPIO
	clock  *SimClock
	output *protocol.ScratchOutput
}

func newWireFixture(t *testing.T) *wireFixture {
	t.Helper()

	// Registration is idempotent; repeated fixtures reuse the IDs
	InitCoreCommands()
	InitServoCommands()

	servos, gpio, clock := newTestServos()
	BindServos(servos)
	SetClockDriver(clock)

	output := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(output, nil))

	return &wireFixture{servos: servos, gpio: gpio, clock: clock, output: output}
}

// dispatch encodes args and dispatches the named command
func (f *wireFixture) dispatch(t *testing.T, name string, args func(protocol.OutputBuffer)) error {
	t.Helper()

	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		t.Fatalf("Command %q not registered", name)
	}

	scratch := protocol.NewScratchOutput()
	if args != nil {
		args(scratch)
	}
	data := scratch.Result()
	return DispatchCommand(cmd.ID, &data)
}

// lastResponse parses the newest frame in the output buffer and
// returns its command ID and remaining payload
func (f *wireFixture) lastResponse(t *testing.T) (uint16, []byte) {
	t.Helper()

	data := f.output.Result()
	if len(data) < protocol.MessageLengthMin {
		t.Fatal("No response frame in output")
	}

	// Walk frames; keep the last one
	var payload []byte
	for len(data) >= protocol.MessageLengthMin {
		msgLen := int(data[protocol.MessagePositionLen])
		if msgLen < protocol.MessageLengthMin || msgLen > len(data) {
			t.Fatalf("Bad frame length %d in output", msgLen)
		}
		payload = data[protocol.MessageHeaderSize : msgLen-protocol.MessageTrailerSize]
		data = data[msgLen:]
	}

	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode response command ID: %v", err)
	}
	return uint16(cmdID), payload
}

func TestConfigServosCommand(t *testing.T) {
	f := newWireFixture(t)

	err := f.dispatch(t, "config_servos", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, []byte{2, 3, 4})
	})
	if err != nil {
		t.Fatalf("config_servos: %v", err)
	}

	if !f.servos.Started() {
		t.Error("Engine not running after config_servos")
	}
	if !f.gpio.configured[2] || !f.gpio.configured[3] || !f.gpio.configured[4] {
		t.Errorf("Pins not configured: %v", f.gpio.configured)
	}

	// Duplicate pins are rejected at the command layer too
	err = f.dispatch(t, "servos_stop", nil)
	if err != nil {
		t.Fatalf("servos_stop: %v", err)
	}
	err = f.dispatch(t, "config_servos", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, []byte{7, 7})
	})
	if err == nil {
		t.Error("config_servos accepted duplicate pins")
	}
}

func TestConfigServosEmptyPayloadResumes(t *testing.T) {
	f := newWireFixture(t)

	err := f.dispatch(t, "config_servos", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, []byte{5})
	})
	if err != nil {
		t.Fatalf("config_servos: %v", err)
	}
	err = f.dispatch(t, "servo_set_target", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 0)
		protocol.EncodeVLQUint(out, 1200)
	})
	if err != nil {
		t.Fatalf("servo_set_target: %v", err)
	}

	if err := f.dispatch(t, "servos_stop", nil); err != nil {
		t.Fatalf("servos_stop: %v", err)
	}
	if f.servos.Started() {
		t.Fatal("Engine still running after servos_stop")
	}

	// Empty pin payload resumes with the previous assignment
	err = f.dispatch(t, "config_servos", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, nil)
	})
	if err != nil {
		t.Fatalf("config_servos resume: %v", err)
	}
	if !f.servos.Started() {
		t.Error("Engine not running after resume")
	}
	target, _ := f.servos.GetTarget(0)
	if target != 1200 {
		t.Errorf("Target lost across stop/resume: %d", target)
	}
}

func TestServoSetCommandsUpdateTable(t *testing.T) {
	f := newWireFixture(t)

	if err := f.dispatch(t, "config_servos", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, []byte{2, 3})
	}); err != nil {
		t.Fatalf("config_servos: %v", err)
	}

	if err := f.dispatch(t, "servo_set_speed", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 1)
		protocol.EncodeVLQUint(out, 480)
	}); err != nil {
		t.Fatalf("servo_set_speed: %v", err)
	}

	if err := f.dispatch(t, "servo_set_target_ticks", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 1)
		protocol.EncodeVLQUint(out, 30000)
	}); err != nil {
		t.Fatalf("servo_set_target_ticks: %v", err)
	}

	speed, _ := f.servos.GetSpeed(1)
	ticks, _ := f.servos.GetTargetTicks(1)
	if speed != 480 || ticks != 30000 {
		t.Errorf("Table not updated: speed=%d ticks=%d", speed, ticks)
	}

	// Out-of-range target propagates the engine error
	err := f.dispatch(t, "servo_set_target", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 0)
		protocol.EncodeVLQUint(out, 2501)
	})
	if err == nil {
		t.Error("servo_set_target accepted 2501us")
	}
}

func TestServoGetStateResponse(t *testing.T) {
	f := newWireFixture(t)

	if err := f.dispatch(t, "config_servos", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, []byte{2})
	}); err != nil {
		t.Fatalf("config_servos: %v", err)
	}
	if err := f.dispatch(t, "servo_set_target", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 0)
		protocol.EncodeVLQUint(out, 1500)
	}); err != nil {
		t.Fatalf("servo_set_target: %v", err)
	}

	if err := f.dispatch(t, "servo_get_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 0)
	}); err != nil {
		t.Fatalf("servo_get_state: %v", err)
	}

	stateCmd, ok := GetGlobalRegistry().GetCommandByName("servo_state")
	if !ok {
		t.Fatal("servo_state response not registered")
	}

	cmdID, payload := f.lastResponse(t)
	if cmdID != stateCmd.ID {
		t.Fatalf("Response ID = %d, want %d", cmdID, stateCmd.ID)
	}

	fields := make([]uint32, 5)
	for i := range fields {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Truncated servo_state payload at field %d: %v", i, err)
		}
		fields[i] = v
	}

	if fields[0] != 0 {
		t.Errorf("channel = %d, want 0", fields[0])
	}
	if fields[1] != 1500*TicksPerMicrosecond {
		t.Errorf("target = %d, want %d", fields[1], 1500*TicksPerMicrosecond)
	}
	if fields[2] != 1500*TicksPerMicrosecond {
		t.Errorf("position = %d, want %d", fields[2], 1500*TicksPerMicrosecond)
	}
	if fields[4] != 0 {
		t.Errorf("moving = %d, want 0", fields[4])
	}

	// Unconfigured channel is an error, no response emitted
	if err := f.dispatch(t, "servo_get_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 5)
	}); err == nil {
		t.Error("servo_get_state accepted an unconfigured channel")
	}
}

func TestGetClockCommand(t *testing.T) {
	f := newWireFixture(t)

	f.clock.Advance(12345)

	if err := f.dispatch(t, "get_clock", nil); err != nil {
		t.Fatalf("get_clock: %v", err)
	}

	clockCmd, ok := GetGlobalRegistry().GetCommandByName("clock")
	if !ok {
		t.Fatal("clock response not registered")
	}

	cmdID, payload := f.lastResponse(t)
	if cmdID != clockCmd.ID {
		t.Fatalf("Response ID = %d, want %d", cmdID, clockCmd.ID)
	}

	value, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		t.Fatalf("Failed to decode clock value: %v", err)
	}
	if value != 12345 {
		t.Errorf("clock = %d, want 12345", value)
	}
}
