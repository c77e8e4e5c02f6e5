package protection

import "time"

// Kind identifies a fault latch.
type Kind uint8

const (
	KindLVP Kind = iota
	KindOCP
	KindOUTV
	KindRelayCoil

	// KindCount is the number of fault kinds.
	KindCount
)

// String returns the fault kind name.
func (k Kind) String() string {
	switch k {
	case KindLVP:
		return "LVP"
	case KindOCP:
		return "OCP"
	case KindOUTV:
		return "OUTV"
	case KindRelayCoil:
		return "RELAY_COIL"
	default:
		return "UNKNOWN"
	}
}

// NoSuspect marks a latch with no suspect relay recorded.
const NoSuspect = -1

// Latch is one fault latch. At most one latch exists per kind; while any
// latch is active the relay outputs are forced off on every tick.
type Latch struct {
	// Active reports whether the fault is latched.
	Active bool

	// TrippedAt is when the latch tripped.
	TrippedAt time.Time

	// SuspectRelay is the channel index suspected of causing a current
	// fault, or NoSuspect. Diagnostic hint only.
	SuspectRelay int
}
