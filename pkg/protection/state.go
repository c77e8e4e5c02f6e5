package protection

import "time"

// Blocked reports the verdict computed by the last Tick: startup guard,
// any active latch, or cooldown.
func (e *Engine) Blocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blocked
}

// StartupGuard reports whether the boot lockout is still set.
func (e *Engine) StartupGuard() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard
}

// Latch returns a copy of one fault latch.
func (e *Engine) Latch(k Kind) Latch {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k >= KindCount {
		return Latch{SuspectRelay: NoSuspect}
	}
	return e.latches[k]
}

// Faulted reports whether any latch is active.
func (e *Engine) Faulted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anyLatchLocked()
}

// SensorFault reports the non-latching indicator for unavailable telemetry
// channels on the last tick.
func (e *Engine) SensorFault() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sensorFault
}

// CooldownActive reports whether the cooldown lockout is running at now.
func (e *Engine) CooldownActive(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Before(e.cooldownUntil)
}

// CooldownRemaining returns the whole seconds left in the cooldown lockout,
// rounded up, or 0 when not in cooldown.
func (e *Engine) CooldownRemaining(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !now.Before(e.cooldownUntil) {
		return 0
	}
	return e.cooldownUntil.Sub(now)
}

// ClearAuthorized reports whether a single-use clearance is armed.
func (e *Engine) ClearAuthorized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clearAuthorized
}

// TripCount returns how many times a fault kind has tripped since boot.
func (e *Engine) TripCount(k Kind) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k >= KindCount {
		return 0
	}
	return e.tripCounts[k]
}

// LastTrip returns when a fault kind last tripped (zero time if never).
func (e *Engine) LastTrip(k Kind) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k >= KindCount {
		return time.Time{}
	}
	return e.lastTrips[k]
}

// Config returns a copy of the current protection configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetLVPCutoff sets the low-voltage cutoff, clamped to its safety bounds,
// and returns the applied value.
func (e *Engine) SetLVPCutoff(v float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.LVPCutoffVolts = clamp(v, LVPCutoffMinVolts, LVPCutoffMaxVolts)
	return e.cfg.LVPCutoffVolts
}

// SetOCPLimit sets the overcurrent limit, clamped to its safety bounds,
// and returns the applied value.
func (e *Engine) SetOCPLimit(v float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.OCPLimitAmps = clamp(v, OCPLimitMinAmps, OCPLimitMaxAmps)
	return e.cfg.OCPLimitAmps
}

// SetOUTVCutoff sets the output undervoltage cutoff, clamped to its safety
// bounds, and returns the applied value.
func (e *Engine) SetOUTVCutoff(v float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.OUTVCutoffVolts = clamp(v, OUTVCutoffMinVolts, OUTVCutoffMaxVolts)
	return e.cfg.OUTVCutoffVolts
}

// SetLVPBypass sets the LVP bypass. Enabling it clears the latch
// immediately and suppresses future trips until disabled.
func (e *Engine) SetLVPBypass(bypass bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.LVPBypass = bypass
	if bypass {
		e.clearLocked(KindLVP)
		e.lvpBelowSince = time.Time{}
		e.lvpRecoverSince = time.Time{}
	}
}

// SetOUTVBypass sets the OUTV bypass. Enabling it clears the latch
// immediately and suppresses all OUTV checks until disabled.
func (e *Engine) SetOUTVBypass(bypass bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.OUTVBypass = bypass
	if bypass {
		e.clearLocked(KindOUTV)
		e.outvLowSince = time.Time{}
	}
}
