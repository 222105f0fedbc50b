//go:build rp2040

package main

// PIO pulse backend using the tinygo-org/pio package. Each configured
// pin gets its own state machine running a two-instruction program
// that copies FIFO words to the pin, so edge timing is decoupled from
// bus contention on the SIO path. RP2040 has 8 state machines across
// PIO0/PIO1, enough for the 6 pulse channels.

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"servopulse/core"
)

// buildPulseProgram creates the pulse PIO program using AssemblerV0
func buildPulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),             // 0: pull block
		asm.Out(rp2pio.OutDestPins, 1).Encode(),    // 1: out pins, 1
		// .wrap
	}
}

const pulsePIOOrigin = 0 // Load at offset 0 for correct wrap addresses

// pulseSM is one claimed state machine driving one pin
type pulseSM struct {
	sm  rp2pio.StateMachine
	pin machine.Pin
}

// PIOPulseDriver implements core.GPIODriver with PIO-driven outputs
type PIOPulseDriver struct {
	channels map[core.GPIOPin]*pulseSM
	loaded   [2]bool  // program loaded per PIO block
	offsets  [2]uint8 // program offset per PIO block
	nextSM   uint8    // next state machine to claim (0-7)
}

// NewPIOPulseDriver creates a PIO-backed pulse driver
func NewPIOPulseDriver() *PIOPulseDriver {
	return &PIOPulseDriver{
		channels: make(map[core.GPIOPin]*pulseSM),
	}
}

// CheckOutput reports whether the pin can get a state machine
func (d *PIOPulseDriver) CheckOutput(pin core.GPIOPin) error {
	if pin > maxGPIOPin {
		return errors.New("pin out of range")
	}
	if _, exists := d.channels[pin]; exists {
		return nil
	}
	if d.nextSM >= 8 {
		return errors.New("no free PIO state machine")
	}
	return nil
}

// ConfigureOutput claims a state machine and binds it to the pin
func (d *PIOPulseDriver) ConfigureOutput(pin core.GPIOPin) error {
	if err := d.CheckOutput(pin); err != nil {
		return err
	}
	if _, exists := d.channels[pin]; exists {
		return nil
	}

	pioNum := d.nextSM / 4
	smNum := d.nextSM % 4
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}

	if !d.loaded[pioNum] {
		program := buildPulseProgram()
		offset, err := pioHW.AddProgram(program, pulsePIOOrigin)
		if err != nil {
			return err
		}
		d.offsets[pioNum] = offset
		d.loaded[pioNum] = true
	}

	sm := pioHW.StateMachine(smNum)
	sm.TryClaim()

	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: pioHW.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(machinePin, 1)
	// Shift right, autopull disabled (the program pulls explicitly)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(d.offsets[pioNum]+1, d.offsets[pioNum])
	cfg.SetClkDivIntFrac(1, 0)

	sm.Init(d.offsets[pioNum], cfg)
	sm.SetPindirsConsecutive(machinePin, 1, true)
	sm.SetPinsConsecutive(machinePin, 1, false)
	sm.SetEnabled(true)

	d.channels[pin] = &pulseSM{sm: sm, pin: machinePin}
	d.nextSM++

	return nil
}

// SetPin pushes the new level through the state machine FIFO
func (d *PIOPulseDriver) SetPin(pin core.GPIOPin, value bool) error {
	ch, exists := d.channels[pin]
	if !exists {
		return errors.New("pin not configured")
	}

	word := uint32(0)
	if value {
		word = 1
	}

	// The FIFO is 4 deep and drains in two PIO cycles; it never
	// backs up at servo pulse rates
	for ch.sm.IsTxFIFOFull() {
	}
	ch.sm.TxPut(word)

	return nil
}

// GetPin reads the pin state back from the pad
func (d *PIOPulseDriver) GetPin(pin core.GPIOPin) (bool, error) {
	ch, exists := d.channels[pin]
	if !exists {
		return false, nil
	}
	return ch.pin.Get(), nil
}
