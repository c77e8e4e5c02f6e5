package relay

// Position is the primary 8-way selector position.
type Position uint8

const (
	// PositionNeutral is the off/neutral position. Required at boot
	// (startup guard) and for clearing current-based faults.
	PositionNeutral Position = 1

	// PositionPassthrough delegates relay control to the secondary
	// sources (remote signal, wireless commands).
	PositionPassthrough Position = 2

	PositionLeft   Position = 3
	PositionRight  Position = 4
	PositionBrake  Position = 5
	PositionTail   Position = 6
	PositionMarker Position = 7 // marker or reverse, per profile
	PositionAux    Position = 8 // aux or electric brake, per profile
)

// IsValid reports whether the position is one of the eight detents.
func (p Position) IsValid() bool {
	return p >= PositionNeutral && p <= PositionAux
}

// String returns a short name for the position.
func (p Position) String() string {
	switch p {
	case PositionNeutral:
		return "NEUTRAL"
	case PositionPassthrough:
		return "PASS"
	case PositionLeft:
		return "LEFT"
	case PositionRight:
		return "RIGHT"
	case PositionBrake:
		return "BRAKE"
	case PositionTail:
		return "TAIL"
	case PositionMarker:
		return "MARKER"
	case PositionAux:
		return "AUX"
	default:
		return "UNKNOWN"
	}
}

// presetPattern returns the fixed output pattern for a preset position.
// Brake and aux presets also light the tail circuit under the heavy-duty
// profile so the tester shows the combination a real tow vehicle produces.
func presetPattern(p Position, profile Profile) [ChannelCount]bool {
	var pattern [ChannelCount]bool
	switch p {
	case PositionLeft:
		pattern[ChannelLeft] = true
	case PositionRight:
		pattern[ChannelRight] = true
	case PositionBrake:
		pattern[ChannelBrake] = true
	case PositionTail:
		pattern[ChannelTail] = true
	case PositionMarker:
		pattern[ChannelMarker] = true
		if profile == ProfileStandard {
			// Marker lights ride with tail.
			pattern[ChannelTail] = true
		}
	case PositionAux:
		pattern[ChannelAux] = true
		if profile == ProfileHeavyDuty {
			pattern[ChannelBrake] = true
		}
	}
	return pattern
}

// PresetLabel returns the display label for a preset position under a
// profile, used as the frame's active label.
func PresetLabel(p Position, profile Profile) string {
	switch p {
	case PositionNeutral:
		return "OFF"
	case PositionPassthrough:
		return "PASS"
	case PositionLeft:
		return profile.Label(ChannelLeft)
	case PositionRight:
		return profile.Label(ChannelRight)
	case PositionBrake:
		return profile.Label(ChannelBrake)
	case PositionTail:
		return profile.Label(ChannelTail)
	case PositionMarker:
		return profile.Label(ChannelMarker)
	case PositionAux:
		return profile.Label(ChannelAux)
	default:
		return "UNKNOWN"
	}
}
