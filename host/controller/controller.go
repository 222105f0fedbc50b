// Package controller is the host-side client for the servo firmware:
// it opens the serial link, retrieves the command dictionary and
// exposes typed methods for the servo command set.
package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"servopulse/host/serial"
	"servopulse/protocol"
)

// Controller represents a connection to a servo controller board
type Controller struct {
	transport *protocol.HostTransport
	port      serial.Port

	dictionary     *Dictionary
	dictionaryData []byte

	connected bool
}

// Dictionary represents the parsed device dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// ServoState is one channel's table entry as reported by the device.
// All quantities in ticks (1/24 us).
type ServoState struct {
	Channel  uint8
	Target   uint16
	Position uint16
	Speed    uint16
	Moving   bool
}

// New creates a new Controller instance (not yet connected)
func New() *Controller {
	return &Controller{}
}

// Connect connects to a device via serial port
func (c *Controller) Connect(device string) error {
	return c.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to a device with a custom serial config
func (c *Controller) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	c.port = port
	c.transport = protocol.NewHostTransport(port)
	c.connected = true

	// Give the device time to initialize if it just powered on
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Close closes the connection
func (c *Controller) Close() error {
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			return err
		}
	}
	c.connected = false
	return nil
}

// RetrieveDictionary retrieves the complete dictionary from the device
func (c *Controller) RetrieveDictionary() error {
	if !c.connected {
		return fmt.Errorf("not connected")
	}

	// The dictionary arrives in chunks through identify
	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000 // Safety limit

	for i := 0; i < maxIterations; i++ {
		chunk, err := c.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}

		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		// A short chunk is the last one
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	c.dictionaryData = dictBuffer.Bytes()

	dict := &Dictionary{}
	if err := json.Unmarshal(c.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	c.dictionary = dict

	return nil
}

// sendIdentify sends an identify command and waits for its response
func (c *Controller) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	// identify is bootstrap command ID 1
	err := c.transport.SendCommand(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	resp, err := c.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	payload := resp.Payload

	// identify_response is bootstrap ID 0
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}
	if cmdID != 0 {
		return nil, fmt.Errorf("unexpected response command ID: %d (expected 0)", cmdID)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}

	return data, nil
}

// lookupCommand finds a command ID by name. Dictionary keys are full
// format strings ("servo_set_target channel=%c target=%hu"), so match
// on the name prefix.
func (c *Controller) lookupCommand(name string) (uint16, error) {
	if c.dictionary == nil {
		return 0, fmt.Errorf("dictionary not loaded")
	}
	for format, id := range c.dictionary.Commands {
		if format == name || strings.HasPrefix(format, name+" ") {
			return uint16(id), nil
		}
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}

// lookupResponse finds a response ID by name
func (c *Controller) lookupResponse(name string) (uint16, error) {
	if c.dictionary == nil {
		return 0, fmt.Errorf("dictionary not loaded")
	}
	for format, id := range c.dictionary.Responses {
		if format == name || strings.HasPrefix(format, name+" ") {
			return uint16(id), nil
		}
	}
	return 0, fmt.Errorf("unknown response: %s", name)
}

// SendCommand sends a command by name
func (c *Controller) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !c.connected {
		return fmt.Errorf("not connected")
	}

	cmdID, err := c.lookupCommand(name)
	if err != nil {
		return err
	}

	return c.transport.SendCommand(cmdID, args)
}

// StartServos assigns pins to channels and starts pulse generation
func (c *Controller) StartServos(pins []uint8) error {
	return c.SendCommand("config_servos", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(output, pins)
	})
}

// ResumeServos restarts pulse generation with the previous pin
// assignment (empty pin payload)
func (c *Controller) ResumeServos() error {
	return c.StartServos(nil)
}

// StopServos halts pulse generation; targets and positions survive
func (c *Controller) StopServos() error {
	return c.SendCommand("servos_stop", nil)
}

// SetTarget sets a channel's target pulse width in microseconds
func (c *Controller) SetTarget(ch uint8, us uint16) error {
	return c.SendCommand("servo_set_target", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(us))
	})
}

// SetTargetTicks sets a channel's target pulse width in ticks
func (c *Controller) SetTargetTicks(ch uint8, ticks uint16) error {
	return c.SendCommand("servo_set_target_ticks", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(ticks))
	})
}

// SetSpeed sets a channel's speed limit in ticks per period (0 = no limit)
func (c *Controller) SetSpeed(ch uint8, speed uint16) error {
	return c.SendCommand("servo_set_speed", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(speed))
	})
}

// State queries one channel's table entry
func (c *Controller) State(ch uint8) (*ServoState, error) {
	respID, err := c.lookupResponse("servo_state")
	if err != nil {
		return nil, err
	}

	err = c.SendCommand("servo_get_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to receive servo state: %w", err)
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if uint16(cmdID) != respID {
		return nil, fmt.Errorf("unexpected response ID: %d (expected %d)", cmdID, respID)
	}

	fields := make([]uint32, 5)
	for i := range fields {
		fields[i], err = protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("truncated servo_state response: %w", err)
		}
	}

	return &ServoState{
		Channel:  uint8(fields[0]),
		Target:   uint16(fields[1]),
		Position: uint16(fields[2]),
		Speed:    uint16(fields[3]),
		Moving:   fields[4] != 0,
	}, nil
}

// Moving reports whether any of the first n channels is still ramping
func (c *Controller) Moving(channels uint8) (bool, error) {
	for ch := uint8(0); ch < channels; ch++ {
		state, err := c.State(ch)
		if err != nil {
			return false, err
		}
		if state.Moving {
			return true, nil
		}
	}
	return false, nil
}

// GetClock queries the device tick counter
func (c *Controller) GetClock() (uint32, error) {
	respID, err := c.lookupResponse("clock")
	if err != nil {
		return 0, err
	}

	if err := c.SendCommand("get_clock", nil); err != nil {
		return 0, err
	}

	resp, err := c.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return 0, err
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, err
	}
	if uint16(cmdID) != respID {
		return 0, fmt.Errorf("unexpected response ID: %d (expected %d)", cmdID, respID)
	}

	return protocol.DecodeVLQUint(&payload)
}

// GetDictionary returns the parsed dictionary
func (c *Controller) GetDictionary() *Dictionary {
	return c.dictionary
}

// GetDictionaryRaw returns the raw dictionary JSON
func (c *Controller) GetDictionaryRaw() []byte {
	return c.dictionaryData
}

// IsConnected returns whether the device is connected
func (c *Controller) IsConnected() bool {
	return c.connected
}

// PrintDictionary prints a summary of the dictionary
func (c *Controller) PrintDictionary() {
	if c.dictionary == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("\n=== Device Dictionary ===")
	fmt.Printf("Version: %s\n", c.dictionary.Version)
	fmt.Printf("Build: %s\n", c.dictionary.BuildVersions)

	fmt.Println("\nConfig:")
	for k, v := range c.dictionary.Config {
		fmt.Printf("  %s = %s\n", k, v)
	}

	fmt.Printf("\nCommands (%d):\n", len(c.dictionary.Commands))
	for name, id := range c.dictionary.Commands {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	fmt.Printf("\nResponses (%d):\n", len(c.dictionary.Responses))
	for name, id := range c.dictionary.Responses {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	fmt.Println("=========================")
}
