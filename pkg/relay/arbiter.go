package relay

import "sync"

// Source identifies the control source that governed the output set on a
// tick. Exactly one source governs per tick.
type Source uint8

const (
	// SourceSelector means a selector position (neutral or preset)
	// determined the outputs, or a block forced them off.
	SourceSelector Source = 0

	// SourceRemote means remote-signal intents were applied.
	SourceRemote Source = 1

	// SourceWireless means wireless command intents were applied.
	SourceWireless Source = 2
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceSelector:
		return "SELECTOR"
	case SourceRemote:
		return "REMOTE"
	case SourceWireless:
		return "WIRELESS"
	default:
		return "UNKNOWN"
	}
}

// Intent is one secondary-source request to change a relay.
// Transient: applied this tick or discarded.
type Intent struct {
	Channel Channel
	On      bool
}

// Arbiter resolves one effective control source per tick and is the sole
// writer of the OutputSet.
type Arbiter struct {
	mu sync.RWMutex

	outputs  OutputSet
	profile  Profile
	position Position
	source   Source
}

// NewArbiter creates an arbiter with all outputs off.
func NewArbiter(profile Profile) *Arbiter {
	return &Arbiter{
		profile:  profile,
		position: PositionNeutral,
	}
}

// Tick resolves the control source for this tick and writes the output set.
//
// blocked is the protection engine's verdict (startup guard, any fault
// latch, or cooldown): when true, every output is forced off regardless of
// any control source, and all intents are discarded. The caller must pass
// blocked on every tick, not just at trip time.
func (a *Arbiter) Tick(pos Position, blocked bool, remote, wireless []Intent) Source {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pos.IsValid() {
		a.position = pos
	}

	if blocked {
		a.outputs.allOff()
		a.source = SourceSelector
		return a.source
	}

	switch a.position {
	case PositionNeutral:
		a.outputs.allOff()
		a.source = SourceSelector

	case PositionPassthrough:
		// Wireless commands win the tick over the remote signal;
		// with neither present the set simply holds its state.
		switch {
		case len(wireless) > 0:
			for _, in := range wireless {
				a.outputs.set(in.Channel, in.On)
			}
			a.source = SourceWireless
		case len(remote) > 0:
			for _, in := range remote {
				a.outputs.set(in.Channel, in.On)
			}
			a.source = SourceRemote
		default:
			a.source = SourceSelector
		}

	default:
		// Preset position: fixed pattern, secondary intents discarded.
		a.outputs.applyPattern(presetPattern(a.position, a.profile))
		a.source = SourceSelector
	}

	return a.source
}

// ForceAllOff cuts every output immediately, outside the normal tick.
// Used by the protection engine's trip path so outputs drop on the same
// tick the fault latches.
func (a *Arbiter) ForceAllOff() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputs.allOff()
}

// Outputs returns a snapshot copy of the output set.
func (a *Arbiter) Outputs() OutputSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.outputs
}

// Position returns the last observed selector position.
func (a *Arbiter) Position() Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.position
}

// EffectiveSource returns the source that governed the last tick.
func (a *Arbiter) EffectiveSource() Source {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.source
}

// Profile returns the operating profile.
func (a *Arbiter) Profile() Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profile
}

// SetProfile switches the operating profile. Takes effect on the next tick;
// independent of arbitration.
func (a *Arbiter) SetProfile(p Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile = p
}
