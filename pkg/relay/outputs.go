package relay

import "github.com/hitchlink/hitchlink-go/pkg/wire"

// OutputSet is the authoritative state of the six relay channels plus the
// high-current enable gate. The Arbiter is its only writer; other components
// read snapshots via Mask/Relay/EnableActive.
type OutputSet struct {
	relays [ChannelCount]bool
	enable bool
}

// Relay reports the state of one channel.
func (o OutputSet) Relay(c Channel) bool {
	if c < 0 || c >= ChannelCount {
		return false
	}
	return o.relays[c]
}

// EnableActive reports the state of the high-current enable gate.
func (o OutputSet) EnableActive() bool {
	return o.enable
}

// Mask packs the relay states into the wire relay mask (LSB = channel 0).
func (o OutputSet) Mask() uint8 {
	var states [wire.RelayCount]bool
	copy(states[:], o.relays[:])
	return wire.PackRelayMask(states)
}

// ActiveCount returns the number of relays currently on.
// Used by the coil-current health check.
func (o OutputSet) ActiveCount() int {
	n := 0
	for _, on := range o.relays {
		if on {
			n++
		}
	}
	return n
}

// SingleActive returns the one active channel when exactly one relay is on.
// Used to record a suspect relay on current faults.
func (o OutputSet) SingleActive() (Channel, bool) {
	active := Channel(-1)
	for c, on := range o.relays {
		if !on {
			continue
		}
		if active >= 0 {
			return 0, false
		}
		active = Channel(c)
	}
	if active < 0 {
		return 0, false
	}
	return active, true
}

// set mutates one channel. Unexported: only the Arbiter writes.
func (o *OutputSet) set(c Channel, on bool) {
	if c >= 0 && c < ChannelCount {
		o.relays[c] = on
	}
	o.enable = o.ActiveCount() > 0
}

// allOff clears every channel and the enable gate.
func (o *OutputSet) allOff() {
	o.relays = [ChannelCount]bool{}
	o.enable = false
}

// applyPattern replaces the whole set with a preset pattern.
func (o *OutputSet) applyPattern(pattern [ChannelCount]bool) {
	o.relays = pattern
	o.enable = o.ActiveCount() > 0
}
