// Package config loads YAML configuration for the device and remote
// binaries.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitchlink/hitchlink-go/pkg/discovery"
	"github.com/hitchlink/hitchlink-go/pkg/pairing"
	"github.com/hitchlink/hitchlink-go/pkg/relay"
)

// ProtectionConfig holds the operator-visible protection thresholds.
// Values outside the safe ranges are clamped by the engine, not here.
type ProtectionConfig struct {
	LVPCutoffVolts  float64 `yaml:"lvp_cutoff_volts"`
	OCPLimitAmps    float64 `yaml:"ocp_limit_amps"`
	OUTVCutoffVolts float64 `yaml:"outv_cutoff_volts"`
	LVPBypass       bool    `yaml:"lvp_bypass"`
	OUTVBypass      bool    `yaml:"outv_bypass"`
}

// DeviceConfig configures the device binary.
type DeviceConfig struct {
	// DeviceID is the stable identifier advertised over mDNS and used
	// as the key derivation salt. Empty means one is generated.
	DeviceID string `yaml:"device_id"`

	// Name is the human-readable device name.
	Name string `yaml:"name"`

	// ListenAddr is the attribute channel listen address.
	ListenAddr string `yaml:"listen_addr"`

	// SetupCode is the 8-digit pairing code.
	SetupCode string `yaml:"setup_code"`

	// Profile is the relay profile name, "standard" or "heavy-duty".
	Profile string `yaml:"profile"`

	// Protection holds the initial protection thresholds.
	Protection ProtectionConfig `yaml:"protection"`

	// StatePath is where persisted device state lives.
	StatePath string `yaml:"state_path"`

	// EventLogPath is where session events are appended. Empty
	// disables the file log.
	EventLogPath string `yaml:"event_log_path"`

	// Interface restricts mDNS to one network interface.
	Interface string `yaml:"interface"`

	// DisableDiscovery turns off the mDNS advertisement.
	DisableDiscovery bool `yaml:"disable_discovery"`
}

// ClientConfig configures the remote binary.
type ClientConfig struct {
	// SetupCode is the 8-digit pairing code of the target device.
	SetupCode string `yaml:"setup_code"`

	// AckTimeout is how long a sent toggle may stay unconfirmed.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// HeartbeatTimeout is how long without a frame before the link
	// counts as stale.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// KnownDevicesPath is where the device cache lives.
	KnownDevicesPath string `yaml:"known_devices_path"`

	// Interface restricts mDNS browsing to one network interface.
	Interface string `yaml:"interface"`
}

// DefaultDeviceConfig returns a device config with working defaults.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Name:       "Trailer tester",
		ListenAddr: fmt.Sprintf(":%d", discovery.DefaultPort),
		Profile:    relay.ProfileStandard.String(),
		Protection: ProtectionConfig{
			LVPCutoffVolts:  11.0,
			OCPLimitAmps:    20.0,
			OUTVCutoffVolts: 10.5,
		},
		StatePath: "hitchlink-device.json",
	}
}

// DefaultClientConfig returns a client config with working defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		AckTimeout:       3 * time.Second,
		HeartbeatTimeout: 5 * time.Second,
		KnownDevicesPath: "hitchlink-known.json",
	}
}

// LoadDeviceConfig reads a device config file, filling in defaults
// for anything the file leaves out.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	cfg := DefaultDeviceConfig()
	if err := loadInto(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfig reads a client config file, filling in defaults
// for anything the file leaves out.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadInto(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}
	return nil
}

// Validate checks the device config for mistakes a clamp cannot fix.
func (c *DeviceConfig) Validate() error {
	if c.SetupCode != "" {
		if err := pairing.ValidateSetupCode(c.SetupCode); err != nil {
			return fmt.Errorf("setup_code: %w", err)
		}
	}
	if _, err := c.RelayProfile(); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	return nil
}

// RelayProfile resolves the configured profile name. Names are matched
// case-insensitively with "-" and "_" treated alike; empty means the
// standard profile.
func (c *DeviceConfig) RelayProfile() (relay.Profile, error) {
	switch strings.ToUpper(strings.ReplaceAll(c.Profile, "-", "_")) {
	case "", relay.ProfileStandard.String():
		return relay.ProfileStandard, nil
	case relay.ProfileHeavyDuty.String():
		return relay.ProfileHeavyDuty, nil
	}
	return 0, fmt.Errorf("unknown profile %q", c.Profile)
}

// Validate checks the client config.
func (c *ClientConfig) Validate() error {
	if c.SetupCode != "" {
		if err := pairing.ValidateSetupCode(c.SetupCode); err != nil {
			return fmt.Errorf("setup_code: %w", err)
		}
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack_timeout must be positive")
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("heartbeat_timeout must be positive")
	}
	return nil
}
