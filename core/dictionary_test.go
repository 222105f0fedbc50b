package core

import (
	"encoding/json"
	"testing"
)

// parsedDict mirrors the JSON shape the host parses
type parsedDict struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations"`
}

func buildTestDictionary() *Dictionary {
	registry := NewCommandRegistry()
	registry.Register("identify_response", "offset=%u data=%*s", nil)
	registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	registry.Register("servo_set_target", "channel=%c target=%hu", func(data *[]byte) error { return nil })
	registry.Register("servo_state", "channel=%c target=%hu position=%hu speed=%hu moving=%c", nil)

	dict := NewDictionary(registry)
	dict.AddConstant("SERVO_MAX_CHANNELS", uint32(MaxChannels))
	dict.AddConstant("SERVO_TICKS_PER_MICROSECOND", uint32(TicksPerMicrosecond))
	dict.AddEnumeration("pin", []string{"gpio0", "gpio1", "gpio2"})
	return dict
}

func TestDictionaryGeneratesValidJSON(t *testing.T) {
	dict := buildTestDictionary()

	data := dict.Generate()
	if len(data) == 0 {
		t.Fatal("Generated dictionary is empty")
	}

	var parsed parsedDict
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Dictionary is not valid JSON: %v\n%s", err, data)
	}

	if parsed.Version != "servopulse-0.1.0" {
		t.Errorf("Version = %q", parsed.Version)
	}
	if parsed.Config["SERVO_MAX_CHANNELS"] != "6" {
		t.Errorf("SERVO_MAX_CHANNELS = %q, want \"6\"", parsed.Config["SERVO_MAX_CHANNELS"])
	}
	if parsed.Config["SERVO_TICKS_PER_MICROSECOND"] != "24" {
		t.Errorf("SERVO_TICKS_PER_MICROSECOND = %q", parsed.Config["SERVO_TICKS_PER_MICROSECOND"])
	}

	// identify has a handler; servo_state does not
	if id, ok := parsed.Commands["identify offset=%u count=%c"]; !ok || id != 1 {
		t.Errorf("identify wrong in commands: %v", parsed.Commands)
	}
	if id, ok := parsed.Responses["identify_response offset=%u data=%*s"]; !ok || id != 0 {
		t.Errorf("identify_response wrong in responses: %v", parsed.Responses)
	}
	if _, ok := parsed.Responses["servo_state channel=%c target=%hu position=%hu speed=%hu moving=%c"]; !ok {
		t.Errorf("servo_state missing from responses: %v", parsed.Responses)
	}

	if parsed.Enumerations["pin"]["gpio2"] != 2 {
		t.Errorf("pin enumeration wrong: %v", parsed.Enumerations)
	}
}

func TestDictionaryCaching(t *testing.T) {
	dict := buildTestDictionary()

	dict.BuildDictionary()
	first := dict.Generate()

	// Cached output must be stable
	second := dict.Generate()
	if string(first) != string(second) {
		t.Error("Cached dictionary changed between calls")
	}

	// Adding a constant invalidates the cache
	dict.AddConstant("SERVO_MAX_TARGET", uint32(MaxTargetMicroseconds))
	third := dict.Generate()
	if string(first) == string(third) {
		t.Error("Dictionary unchanged after adding a constant")
	}

	var parsed parsedDict
	if err := json.Unmarshal(third, &parsed); err != nil {
		t.Fatalf("Regenerated dictionary is not valid JSON: %v", err)
	}
	if parsed.Config["SERVO_MAX_TARGET"] != "2500" {
		t.Errorf("SERVO_MAX_TARGET = %q", parsed.Config["SERVO_MAX_TARGET"])
	}
}

func TestDictionaryGetChunk(t *testing.T) {
	dict := buildTestDictionary()
	full := dict.Generate()

	// Reassemble from chunks
	var assembled []byte
	offset := uint32(0)
	for {
		chunk := dict.GetChunk(offset, 40)
		if len(chunk) == 0 {
			break
		}
		assembled = append(assembled, chunk...)
		offset += uint32(len(chunk))
	}

	if string(assembled) != string(full) {
		t.Errorf("Chunked reassembly differs: %d vs %d bytes", len(assembled), len(full))
	}

	// Out-of-range offset returns an empty chunk
	if chunk := dict.GetChunk(uint32(len(full))+10, 40); len(chunk) != 0 {
		t.Errorf("Expected empty chunk past the end, got %d bytes", len(chunk))
	}
}

func TestSortHelpers(t *testing.T) {
	s := []string{"pin", "CLOCK_FREQ", "MCU", "SERVO_MAX_TARGET"}
	sortStrings(s)
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			t.Fatalf("sortStrings failed: %v", s)
		}
	}

	n := []int{5, 0, 3, 3, 1}
	sortInts(n)
	for i := 1; i < len(n); i++ {
		if n[i-1] > n[i] {
			t.Fatalf("sortInts failed: %v", n)
		}
	}
}
