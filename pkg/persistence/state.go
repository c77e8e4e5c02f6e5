package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// DeviceState is the device-side state that survives restarts:
// the operator's protection settings and the relay profile.
type DeviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Protection holds the configured thresholds and bypasses.
	Protection ProtectionSettings `json:"protection"`

	// Profile is the active relay profile name.
	Profile string `json:"profile,omitempty"`
}

// ProtectionSettings mirrors protection.Config for JSON serialization.
// Values are re-clamped when loaded, so a hand-edited file cannot push
// a threshold outside its safe range.
type ProtectionSettings struct {
	LVPCutoffVolts  float64 `json:"lvp_cutoff_volts"`
	OCPLimitAmps    float64 `json:"ocp_limit_amps"`
	OUTVCutoffVolts float64 `json:"outv_cutoff_volts"`
	LVPBypass       bool    `json:"lvp_bypass,omitempty"`
	OUTVBypass      bool    `json:"outv_bypass,omitempty"`
}

// DeviceStateStore persists device state to a JSON file.
type DeviceStateStore struct {
	mu   sync.Mutex
	path string
}

// NewDeviceStateStore creates a store writing to path.
func NewDeviceStateStore(path string) *DeviceStateStore {
	return &DeviceStateStore{path: path}
}

// Save persists the device state to disk.
func (s *DeviceStateStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Load reads the device state from disk.
// Returns nil, nil if the file doesn't exist.
func (s *DeviceStateStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &DeviceState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Clear removes the state file.
func (s *DeviceStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
