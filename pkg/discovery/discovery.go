package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// Service constants.
const (
	// ServiceType is the mDNS service type for test controllers.
	ServiceType = "_hitchlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the default attribute channel port.
	DefaultPort = 7733

	// ProtocolVersion is the advertised protocol version.
	ProtocolVersion = "1"

	// MaxInstanceNameLen caps the advertised instance name.
	MaxInstanceNameLen = 63
)

// ErrNotFound indicates no matching service was discovered.
var ErrNotFound = errors.New("service not found")

// Info is what a device advertises about itself.
type Info struct {
	// DeviceID is the stable device identifier.
	DeviceID string

	// Name is the human-readable device name.
	Name string

	// Profile is the active relay profile name.
	Profile string

	// Port is the attribute channel port. Zero means DefaultPort.
	Port uint16
}

// Service is one discovered controller.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	DeviceID string
	Name     string
	Version  string
	Profile  string
}

// Addr returns the first usable host:port for dialing, or "".
func (s *Service) Addr() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	host := s.Addresses[0]
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, s.Port)
}

// encodeTXT builds the TXT records for an advertisement.
func encodeTXT(info *Info) []string {
	txt := []string{
		"id=" + info.DeviceID,
		"ver=" + ProtocolVersion,
	}
	if info.Name != "" {
		txt = append(txt, "name="+info.Name)
	}
	if info.Profile != "" {
		txt = append(txt, "profile="+info.Profile)
	}
	return txt
}

// decodeTXT parses TXT records. The id record is mandatory.
func decodeTXT(txt []string) (id, name, ver, profile string, err error) {
	for _, record := range txt {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch key {
		case "id":
			id = value
		case "name":
			name = value
		case "ver":
			ver = value
		case "profile":
			profile = value
		}
	}
	if id == "" {
		return "", "", "", "", errors.New("missing id record")
	}
	return id, name, ver, profile, nil
}
