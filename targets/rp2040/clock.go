//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"servopulse/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// HWClock implements core.ClockDriver on the RP2040 hardware timer.
// The hardware counter runs at 1MHz; pulse ticks run at 24MHz, so the
// microsecond count is scaled by TicksPerMicrosecond. The scaling is
// consistent modulo 2^32, so tick differences stay correct across
// counter wrap.
type HWClock struct{}

// InitClock registers the clock driver and its dictionary constants
func InitClock() *HWClock {
	clk := &HWClock{}
	core.SetClockDriver(clk)
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(1000000*core.TicksPerMicrosecond))
	return clk
}

// Ticks returns the current pulse tick counter
func (c *HWClock) Ticks() uint32 {
	return timerRAWL.Get() * core.TicksPerMicrosecond
}

// Sleep busy-waits for the given number of pulse ticks
func (c *HWClock) Sleep(ticks uint32) {
	start := c.Ticks()
	for c.Ticks()-start < ticks {
	}
}

// HardwareUptime reads the full 64-bit microsecond timer.
// High must be read twice to detect rollover during the read.
func HardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}
