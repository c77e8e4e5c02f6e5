package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// KnownDevice is one remembered device on the remote side.
type KnownDevice struct {
	// ID is the device identifier from its discovery record.
	ID string `json:"id"`

	// Name is the human-readable device name.
	Name string `json:"name,omitempty"`

	// Addr is the last host:port the device was reachable at.
	Addr string `json:"addr,omitempty"`

	// LastSignalStrength is the signal strength at last contact, in dBm.
	// Zero means unknown.
	LastSignalStrength int `json:"last_signal_strength,omitempty"`

	// LastSeenAt is when the device was last connected or discovered.
	LastSeenAt time.Time `json:"last_seen_at"`
}

// knownDeviceFile is the on-disk layout.
type knownDeviceFile struct {
	Version int           `json:"version"`
	SavedAt time.Time     `json:"saved_at"`
	Devices []KnownDevice `json:"devices,omitempty"`
}

// KnownDeviceStore persists the remote's device cache to a JSON file.
type KnownDeviceStore struct {
	mu      sync.Mutex
	path    string
	devices map[string]KnownDevice
	loaded  bool
}

// NewKnownDeviceStore creates a store writing to path.
func NewKnownDeviceStore(path string) *KnownDeviceStore {
	return &KnownDeviceStore{
		path:    path,
		devices: make(map[string]KnownDevice),
	}
}

// Load reads the cache from disk. A missing file is an empty cache.
func (s *KnownDeviceStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	var file knownDeviceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, d := range file.Devices {
		s.devices[d.ID] = d
	}
	s.loaded = true
	return nil
}

// Upsert records a device sighting and saves the cache.
// An existing entry keeps fields the update leaves blank.
func (s *KnownDeviceStore) Upsert(dev KnownDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.devices[dev.ID]; ok {
		if dev.Name == "" {
			dev.Name = prev.Name
		}
		if dev.Addr == "" {
			dev.Addr = prev.Addr
		}
		if dev.LastSignalStrength == 0 {
			dev.LastSignalStrength = prev.LastSignalStrength
		}
	}
	if dev.LastSeenAt.IsZero() {
		dev.LastSeenAt = time.Now()
	}
	s.devices[dev.ID] = dev

	return s.saveLocked()
}

// Get returns one cached device.
func (s *KnownDeviceStore) Get(id string) (KnownDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	return d, ok
}

// All returns the cached devices, most recently seen first.
func (s *KnownDeviceStore) All() []KnownDevice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]KnownDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out
}

// Remove drops a device from the cache and saves.
func (s *KnownDeviceStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return nil
	}
	delete(s.devices, id)
	return s.saveLocked()
}

// saveLocked writes the cache to disk. Caller holds s.mu.
func (s *KnownDeviceStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	file := knownDeviceFile{
		Version: StateVersion,
		SavedAt: time.Now(),
	}
	for _, d := range s.devices {
		file.Devices = append(file.Devices, d)
	}
	sort.Slice(file.Devices, func(i, j int) bool {
		return file.Devices[i].ID < file.Devices[j].ID
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
