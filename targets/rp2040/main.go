//go:build rp2040

package main

import (
	"machine"
	"time"

	"servopulse/core"
	"servopulse/protocol"
)

// usePIOPulses selects the PIO-backed pulse driver instead of direct
// SIO writes. PIO keeps edge timing independent of main loop load.
const usePIOPulses = false

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	servos *core.Servos
	clk    *core.HWClock

	msgerrors uint32

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	clk = InitClock()

	var gpioDriver core.GPIODriver
	if usePIOPulses {
		gpioDriver = NewPIOPulseDriver()
	} else {
		gpioDriver = NewRPGPIODriver()
	}
	core.SetGPIODriver(gpioDriver)

	core.InitCoreCommands()
	core.InitServoCommands()

	// Pin enumeration must be registered before BuildDictionary
	registerRP2040Pins()

	servos = core.NewServos(gpioDriver, clk)
	core.BindServos(servos)

	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		// Clear buffers on host reset; the servo table survives so a
		// host restart doesn't glitch running servos
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// ACKs must reach the host before any buffered response
	transport.SetFlushCallback(func() {
		writeUSB()
	})
	core.SetGlobalTransport(transport)

	// Watchdog reset handles USB re-enumeration better than SYSRESETREQ
	core.SetResetHandler(func() {
		err = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		if err != nil {
			return
		}
		err = machine.Watchdog.Start()
		if err != nil {
			return
		}
		for {
			time.Sleep(1 * time.Millisecond)
		}
	})

	go usbReaderLoop()

	sched := servos.Scheduler()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			// Process incoming messages
			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)

				consumed := originalLen - inputBuf.Available()
				if consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			// Write outgoing USB data
			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			// Reset only after the ACK has been transmitted
			core.CheckPendingReset()

			// Run due servo timers
			sched.Dispatch(clk.Ticks())
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// Receiving data after a disconnect means the host is
			// back; start from a clean link state
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				consecutiveWriteFailures = 0
			}

			written := inputBuffer.Write([]byte{data})
			if written == 0 {
				// Buffer full - error condition
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// handleCommand dispatches received commands to the command registry
func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// registerRP2040Pins registers the GPIO pin name enumeration
func registerRP2040Pins() {
	pinNames := make([]string, maxGPIOPin+1)
	for i := range pinNames {
		pinNames[i] = "gpio" + itoa(i)
	}
	core.RegisterEnumeration("pin", pinNames)
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	negative := i < 0
	if negative {
		i = -i
	}

	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}

// writeUSB writes available data from the output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}

	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Write error or no progress - likely disconnect
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				// Drop stale data for a clean state on reconnect
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}

	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
