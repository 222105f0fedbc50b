package core

import (
	"sync/atomic"

	"servopulse/protocol"
)

// InitCoreCommands registers the base protocol commands.
// IMPORTANT: Command registration order matters!
// The host has a hardcoded bootstrap dictionary:
//
//	identify_response = ID 0
//	identify = ID 1
func InitCoreCommands() {
	// Bootstrap messages - MUST be first to match the host's defaults
	RegisterCommand("identify_response", "offset=%u data=%*s", nil)   // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	// Other commands (order doesn't matter after bootstrap)
	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("reset", "", handleReset)

	// Response messages (MCU -> Host)
	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(data *[]byte) error {
	// Decode arguments: offset (uint32), count (uint8)
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count8, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count := uint8(count8)

	chunk := GetGlobalDictionary().GetChunk(offset, count)

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

// handleGetClock returns the current tick counter
func handleGetClock(data *[]byte) error {
	clock := MustClock().Ticks()

	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})

	return nil
}

// handleGetUptime returns the tick counter as a 64-bit uptime.
// The hardware counter is 32 bits; the high word stays 0 until a
// target tracks rollovers.
func handleGetUptime(data *[]byte) error {
	low := MustClock().Ticks()

	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, low)
	})

	return nil
}

// SendResponse sends a response message using the global transport
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}

	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses should be pre-registered
		panic("response not registered: " + responseName)
	}

	globalTransport.SendCommand(cmd.ID, args)
}

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// Global reset handler (set by target-specific code)
var globalResetHandler func()

// resetPending is set when a reset command is received
// The actual reset happens in the main loop after the ACK is sent
var resetPending uint32 // atomic bool

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

// handleReset triggers a hardware reset of the MCU
// NOTE: The actual reset is deferred until after the ACK is sent to the host
func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset checks if a reset was requested and executes it
// This should be called from the main loop after all pending messages are sent
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 {
		if globalResetHandler != nil {
			globalResetHandler()
			// Should never return - reset handler resets the MCU
		}
	}
}
