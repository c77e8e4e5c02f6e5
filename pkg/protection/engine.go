package protection

import (
	"math"
	"sync"
	"time"

	"github.com/hitchlink/hitchlink-go/pkg/telemetry"
)

// Debounce, hysteresis and cooldown tuning. Durations are measured against
// the monotonic timestamps the control loop passes into Tick.
const (
	// LVPDebounce is how long the source must stay under the cutoff
	// before the LVP latch trips.
	LVPDebounce = 200 * time.Millisecond

	// LVPRecoveryMarginVolts is the hysteresis margin above the cutoff
	// required for recovery.
	LVPRecoveryMarginVolts = 0.3

	// LVPRecoveryHold is how long the source must hold the recovery band
	// before the LVP latch auto-clears.
	LVPRecoveryHold = 800 * time.Millisecond

	// OCPInstantFactor scales the limit for the instant (probable short)
	// tier.
	OCPInstantFactor = 2.0

	// OCPDebounce is the moderate-overload debounce. Tuned short for
	// fast response.
	OCPDebounce = 10 * time.Millisecond

	// InrushSuppression is the OCP suppression window after a selector
	// position change, riding out relay-switch inrush transients.
	InrushSuppression = 700 * time.Millisecond

	// ClearNeutralHold is how long the selector must sit in neutral,
	// with clearance authorized, before a current latch clears.
	ClearNeutralHold = 300 * time.Millisecond

	// OUTVOvervoltMaxVolts trips the OUTV latch instantly.
	OUTVOvervoltMaxVolts = 16.0

	// OUTVUndervoltFloorVolts trips the OUTV latch after OUTVDebounce
	// regardless of the configured cutoff.
	OUTVUndervoltFloorVolts = 8.0

	// OUTVDebounce is the output undervoltage debounce.
	OUTVDebounce = 200 * time.Millisecond

	// CoilCheckInterval is how often coil current is compared against
	// the expected draw.
	CoilCheckInterval = 500 * time.Millisecond

	// CoilPerRelayAmps is the nominal coil draw per energized relay.
	CoilPerRelayAmps = 0.080

	// CoilTolerance is the accepted fraction above/below the expected
	// coil draw.
	CoilTolerance = 0.40

	// CoilIdleMaxAmps is the maximum coil reading with no relay active.
	CoilIdleMaxAmps = 0.005

	// CoilTripChecks is the number of consecutive failed checks that
	// latch a coil fault. One bad reading is not persistent.
	CoilTripChecks = 2

	// CooldownThresholdAmps is the sustained-current threshold feeding
	// the cooldown timer. Independent of the OCP limit.
	CooldownThresholdAmps = 20.5

	// CooldownSustain is how long the current must stay over the
	// threshold before the cooldown starts.
	CooldownSustain = 120 * time.Second

	// CooldownDuration is how long operation stays blocked once the
	// cooldown starts.
	CooldownDuration = 120 * time.Second
)

// TickInput is everything the engine consumes on one control-loop tick.
type TickInput struct {
	// Sample is this tick's telemetry.
	Sample telemetry.Sample

	// Now is the monotonic timestamp for this tick.
	Now time.Time

	// SelectorNeutral reports the debounced neutral observation of the
	// primary selector.
	SelectorNeutral bool

	// ActiveRelays is how many relays the arbiter had energized when the
	// sample was taken. Feeds the coil health check.
	ActiveRelays int

	// SuspectRelay is the single active channel index when exactly one
	// relay was on, else NoSuspect. Recorded on current-fault trips.
	SuspectRelay int
}

// Engine is the protection state machine. One instance per device, owned by
// the control loop; setters may be called from the command/UI paths.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	latches [KindCount]Latch

	guard bool

	// LVP windows
	lvpBelowSince   time.Time
	lvpRecoverSince time.Time

	// OCP windows
	ocpOverSince     time.Time
	suppressOCPUntil time.Time

	// OUTV window
	outvLowSince time.Time

	// Coil check
	lastCoilCheck time.Time
	coilMisses    int

	// Manual clear
	clearAuthorized bool
	neutralSince    time.Time

	// Cooldown
	highSince     time.Time
	cooldownUntil time.Time

	// Non-latching indicators
	sensorFault bool
	blocked     bool

	// Diagnostics
	tripCounts [KindCount]uint32
	lastTrips  [KindCount]time.Time

	onTrip  func(Kind, Latch)
	onClear func(Kind)
}

// NewEngine creates an engine. The startup guard is set when the selector is
// not already in neutral at boot.
func NewEngine(cfg Config, selectorNeutralAtBoot bool) *Engine {
	e := &Engine{
		cfg:   cfg.clamped(),
		guard: !selectorNeutralAtBoot,
	}
	for k := range e.latches {
		e.latches[k].SuspectRelay = NoSuspect
	}
	return e
}

// OnTrip sets a callback invoked when a latch trips.
func (e *Engine) OnTrip(fn func(Kind, Latch)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrip = fn
}

// OnClear sets a callback invoked when a latch clears.
func (e *Engine) OnClear(fn func(Kind)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClear = fn
}

// Tick runs one protection pass and returns the block verdict for this tick.
// The caller must enforce a true verdict by forcing all outputs off before
// anything else runs this tick.
func (e *Engine) Tick(in TickInput) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := in.Now

	e.sensorFault = in.Sample.AnyUnavailable()

	// Startup guard clears on the first neutral observation.
	if e.guard && in.SelectorNeutral {
		e.guard = false
	}

	e.tickCooldown(in.Sample.LoadAmps, now)
	e.tickLVP(in.Sample.SourceVolts, now)
	e.tickOCP(in.Sample.LoadAmps, now, in.SuspectRelay)
	e.tickOUTV(in.Sample.OutputVolts, now)
	e.tickCoil(in.Sample.CoilAmps, now, in.ActiveRelays, in.SuspectRelay)
	e.tickManualClear(in.SelectorNeutral, now)

	e.blocked = e.guard || e.anyLatchLocked() || now.Before(e.cooldownUntil)
	return e.blocked
}

// NoteSelectorChange starts the OCP inrush suppression window. Call on
// every observed selector position change.
func (e *Engine) NoteSelectorChange(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suppressOCPUntil = now.Add(InrushSuppression)
	e.ocpOverSince = time.Time{}
}

// AuthorizeClear arms a single-use clearance for the current-based latches
// (OCP, relay coil). The latch clears once the selector is additionally
// observed in neutral for a stable ClearNeutralHold.
func (e *Engine) AuthorizeClear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearAuthorized = true
}

// --- per-fault passes (mu held) ---

func (e *Engine) tickLVP(r telemetry.Reading, now time.Time) {
	if e.cfg.LVPBypass {
		// Bypass clears the latch immediately and suppresses trips.
		e.clearLocked(KindLVP)
		e.lvpBelowSince = time.Time{}
		e.lvpRecoverSince = time.Time{}
		return
	}
	if !r.Valid {
		return
	}

	latch := &e.latches[KindLVP]
	if !latch.Active {
		if r.Value < e.cfg.LVPCutoffVolts {
			if e.lvpBelowSince.IsZero() {
				e.lvpBelowSince = now
			} else if now.Sub(e.lvpBelowSince) >= LVPDebounce {
				e.tripLocked(KindLVP, now, NoSuspect)
			}
		} else {
			e.lvpBelowSince = time.Time{}
		}
		return
	}

	// Latched: auto-clear requires cutoff+margin held for the full window;
	// any dip restarts it.
	if r.Value >= e.cfg.LVPCutoffVolts+LVPRecoveryMarginVolts {
		if e.lvpRecoverSince.IsZero() {
			e.lvpRecoverSince = now
		} else if now.Sub(e.lvpRecoverSince) >= LVPRecoveryHold {
			e.clearLocked(KindLVP)
			e.lvpBelowSince = time.Time{}
			e.lvpRecoverSince = time.Time{}
		}
	} else {
		e.lvpRecoverSince = time.Time{}
	}
}

func (e *Engine) tickOCP(r telemetry.Reading, now time.Time, suspect int) {
	if e.latches[KindOCP].Active || !r.Valid {
		return
	}
	if now.Before(e.suppressOCPUntil) {
		// Inrush window after a selector change.
		e.ocpOverSince = time.Time{}
		return
	}

	i := math.Abs(r.Value)
	limit := e.cfg.OCPLimitAmps

	switch {
	case i >= OCPInstantFactor*limit:
		// Probable short: no debounce.
		e.tripLocked(KindOCP, now, suspect)
	case i > limit:
		if e.ocpOverSince.IsZero() {
			e.ocpOverSince = now
		} else if now.Sub(e.ocpOverSince) >= OCPDebounce {
			e.tripLocked(KindOCP, now, suspect)
		}
	default:
		e.ocpOverSince = time.Time{}
	}
}

func (e *Engine) tickOUTV(r telemetry.Reading, now time.Time) {
	if e.cfg.OUTVBypass {
		e.clearLocked(KindOUTV)
		e.outvLowSince = time.Time{}
		return
	}
	if !r.Valid {
		return
	}

	v := r.Value
	switch {
	case v > OUTVOvervoltMaxVolts:
		e.outvLowSince = time.Time{}
		if !e.latches[KindOUTV].Active {
			e.tripLocked(KindOUTV, now, NoSuspect)
		}
	case v < OUTVUndervoltFloorVolts || v < e.cfg.OUTVCutoffVolts:
		if e.latches[KindOUTV].Active {
			return
		}
		if e.outvLowSince.IsZero() {
			e.outvLowSince = now
		} else if now.Sub(e.outvLowSince) >= OUTVDebounce {
			e.tripLocked(KindOUTV, now, NoSuspect)
		}
	default:
		// Back in band: clears immediately, no hysteresis delay.
		e.outvLowSince = time.Time{}
		e.clearLocked(KindOUTV)
	}
}

func (e *Engine) tickCoil(r telemetry.Reading, now time.Time, activeRelays, suspect int) {
	if now.Sub(e.lastCoilCheck) < CoilCheckInterval && !e.lastCoilCheck.IsZero() {
		return
	}
	e.lastCoilCheck = now

	if !r.Valid || e.latches[KindRelayCoil].Active {
		return
	}

	i := math.Abs(r.Value)
	var healthy bool
	if activeRelays == 0 {
		healthy = i < CoilIdleMaxAmps
	} else {
		expected := float64(activeRelays) * CoilPerRelayAmps
		healthy = i >= expected*(1-CoilTolerance) && i <= expected*(1+CoilTolerance)
	}

	if healthy {
		e.coilMisses = 0
		return
	}
	e.coilMisses++
	if e.coilMisses >= CoilTripChecks {
		if activeRelays != 1 {
			suspect = NoSuspect
		}
		e.tripLocked(KindRelayCoil, now, suspect)
		e.coilMisses = 0
	}
}

func (e *Engine) tickManualClear(selectorNeutral bool, now time.Time) {
	manual := e.latches[KindOCP].Active || e.latches[KindRelayCoil].Active
	if !manual || !e.clearAuthorized || !selectorNeutral {
		e.neutralSince = time.Time{}
		return
	}

	if e.neutralSince.IsZero() {
		e.neutralSince = now
		return
	}
	if now.Sub(e.neutralSince) < ClearNeutralHold {
		return
	}

	// Authorization is single-use; it clears whichever current latches
	// are active right now.
	e.clearLocked(KindOCP)
	e.clearLocked(KindRelayCoil)
	e.clearAuthorized = false
	e.neutralSince = time.Time{}
	e.ocpOverSince = time.Time{}
	e.coilMisses = 0
}

func (e *Engine) tickCooldown(r telemetry.Reading, now time.Time) {
	if !r.Valid {
		return
	}
	if math.Abs(r.Value) > CooldownThresholdAmps {
		if e.highSince.IsZero() {
			e.highSince = now
		} else if now.Sub(e.highSince) >= CooldownSustain {
			e.cooldownUntil = now.Add(CooldownDuration)
			e.highSince = time.Time{}
		}
	} else {
		// Dropped back under threshold before the sustain mark: no penalty.
		e.highSince = time.Time{}
	}
}

// --- trip/clear plumbing (mu held) ---

func (e *Engine) tripLocked(k Kind, now time.Time, suspect int) {
	latch := &e.latches[k]
	if latch.Active {
		return
	}
	latch.Active = true
	latch.TrippedAt = now
	latch.SuspectRelay = suspect

	e.tripCounts[k]++
	e.lastTrips[k] = now

	if e.onTrip != nil {
		e.onTrip(k, *latch)
	}
}

func (e *Engine) clearLocked(k Kind) {
	latch := &e.latches[k]
	if !latch.Active {
		return
	}
	latch.Active = false
	latch.SuspectRelay = NoSuspect

	if e.onClear != nil {
		e.onClear(k)
	}
}

func (e *Engine) anyLatchLocked() bool {
	for k := range e.latches {
		if e.latches[k].Active {
			return true
		}
	}
	return false
}
