package core

import (
	"testing"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	id := registry.Register("test_command", "arg=%u", handler)

	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	if err := registry.Dispatch(999, &data); err == nil {
		t.Error("Expected error for unknown command ID")
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.Register("command3", "arg3=%u", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}

	// Re-registering a name returns the existing ID
	again := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	if again != id2 {
		t.Errorf("Re-registration returned %d, want %d", again, id2)
	}

	if registry.Count() != 3 {
		t.Errorf("Count = %d, want 3", registry.Count())
	}
}

func TestCommandRegistryByName(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("servo_set_speed", "channel=%c speed=%hu", func(data *[]byte) error { return nil })

	cmd, ok := registry.GetCommandByName("servo_set_speed")
	if !ok || cmd.Format != "channel=%c speed=%hu" {
		t.Errorf("GetCommandByName failed: ok=%v cmd=%+v", ok, cmd)
	}

	if _, ok := registry.GetCommandByName("missing"); ok {
		t.Error("GetCommandByName found a command that was never registered")
	}
}

func TestCommandsAndResponsesSplit(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("do_thing", "arg=%u", func(data *[]byte) error { return nil })
	registry.Register("thing_done", "result=%u", nil) // response: nil handler

	commands, responses := registry.GetCommandsAndResponses()

	if _, ok := commands["do_thing arg=%u"]; !ok {
		t.Errorf("Command missing from commands map: %v", commands)
	}
	if _, ok := responses["thing_done result=%u"]; !ok {
		t.Errorf("Response missing from responses map: %v", responses)
	}
	if len(commands) != 1 || len(responses) != 1 {
		t.Errorf("Split wrong: commands=%v responses=%v", commands, responses)
	}

	// Dispatching a response is an error
	var data []byte
	if err := registry.Dispatch(1, &data); err == nil {
		t.Error("Expected error dispatching a handlerless response")
	}
}
