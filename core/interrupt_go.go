//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// On hosted builds the "interrupt" is the scheduler dispatch goroutine;
// a process-wide lock is the analogue of masking that one source.
var irqMu sync.Mutex

// disableInterrupts takes the global interrupt lock
func disableInterrupts() State {
	irqMu.Lock()
	return 0
}

// restoreInterrupts releases the global interrupt lock
func restoreInterrupts(state State) {
	irqMu.Unlock()
}
