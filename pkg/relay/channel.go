package relay

// Channel is a physical relay output channel index (0-based, matching the
// relay mask bit order on the wire).
type Channel int

const (
	ChannelLeft Channel = iota
	ChannelRight
	ChannelBrake
	ChannelTail
	ChannelMarker
	ChannelAux

	// ChannelCount is the number of controllable relay channels.
	ChannelCount
)

// channelIDs are the stable wire ids, independent of operating profile.
var channelIDs = [ChannelCount]string{
	"relay-left",
	"relay-right",
	"relay-brake",
	"relay-tail",
	"relay-marker",
	"relay-aux",
}

// ID returns the stable wire id for the channel.
func (c Channel) ID() string {
	if c < 0 || c >= ChannelCount {
		return "unknown"
	}
	return channelIDs[c]
}

// ChannelByID resolves a wire id to a channel.
// Returns false for unknown ids; the command channel drops those silently.
func ChannelByID(id string) (Channel, bool) {
	for c, known := range channelIDs {
		if known == id {
			return Channel(c), true
		}
	}
	return 0, false
}

// ChannelIDs returns all channel ids in mask bit order.
func ChannelIDs() []string {
	ids := make([]string, ChannelCount)
	copy(ids, channelIDs[:])
	return ids
}

// Profile selects how the two role-switchable channels are used.
// Persisted and toggled by a dedicated user action, independent of
// arbitration.
type Profile uint8

const (
	// ProfileStandard backs marker lights on the marker channel and an
	// auxiliary circuit on the aux channel.
	ProfileStandard Profile = 0

	// ProfileHeavyDuty backs reverse lights on the marker channel and the
	// electric brake controller on the aux channel.
	ProfileHeavyDuty Profile = 1
)

// String returns the profile name.
func (p Profile) String() string {
	switch p {
	case ProfileStandard:
		return "STANDARD"
	case ProfileHeavyDuty:
		return "HEAVY_DUTY"
	default:
		return "UNKNOWN"
	}
}

// Toggle returns the other profile.
func (p Profile) Toggle() Profile {
	if p == ProfileStandard {
		return ProfileHeavyDuty
	}
	return ProfileStandard
}

// ParseProfile parses a persisted profile name. Unknown names map to
// ProfileStandard.
func ParseProfile(s string) Profile {
	if s == ProfileHeavyDuty.String() {
		return ProfileHeavyDuty
	}
	return ProfileStandard
}

// Label returns the display label of a channel under a profile.
func (p Profile) Label(c Channel) string {
	switch c {
	case ChannelLeft:
		return "LEFT"
	case ChannelRight:
		return "RIGHT"
	case ChannelBrake:
		return "BRAKE"
	case ChannelTail:
		return "TAIL"
	case ChannelMarker:
		if p == ProfileHeavyDuty {
			return "REVERSE"
		}
		return "MARKER"
	case ChannelAux:
		if p == ProfileHeavyDuty {
			return "E-BRAKE"
		}
		return "AUX"
	default:
		return "UNKNOWN"
	}
}
