// Package protection implements the authoritative on-device safety engine:
// fault latching, debounce and hysteresis windows, the startup guard, and the
// sustained-high-current cooldown timer.
//
// The engine is ticked synchronously by the control loop with one telemetry
// sample and a monotonic timestamp per tick. It never owns the relay outputs;
// it produces a block verdict that the relay arbiter enforces on every tick,
// so no other code path can re-enable outputs while a fault is live.
//
// # Fault kinds and clear rules
//
//   - LVP (low source voltage): 200 ms trip debounce. Auto-clears after the
//     source holds cutoff+0.3 V continuously for 800 ms; a dip below that
//     band restarts the window. Bypass clears the latch immediately and
//     suppresses future trips.
//
//   - OCP (overcurrent), two tiers: at or above twice the limit the latch
//     trips instantly (probable short); above the limit it trips after 10 ms.
//     A ~700 ms suppression window follows every selector position change to
//     ride out relay-switch inrush. OCP never clears on healthy current
//     alone: clearing requires AuthorizeClear plus the selector observed in
//     neutral for a stable 300 ms, and the authorization is consumed.
//
//   - OUTV (output voltage): above 16 V trips instantly; below 8 V or below
//     the configured cutoff trips after 200 ms. Any reading back inside
//     [cutoff, 16 V] clears the latch immediately. Bypass suppresses all
//     OUTV checks.
//
//   - Relay coil: every 500 ms the measured coil current is compared against
//     activeRelays x 80 mA with a 40% tolerance (idle must read under 5 mA).
//     Two consecutive failed checks latch the fault, recording a suspect
//     channel when exactly one relay was expected active. Clear rule is the
//     same as OCP.
//
// The clear-policy asymmetry between the voltage latches (auto-clear) and the
// current latches (authorization + neutral) mirrors the shipped product and
// is intentionally left unreconciled pending product confirmation.
//
// # Startup guard and cooldown
//
// The startup guard is set at boot when the selector is not in neutral and
// clears the first time neutral is observed; while set, everything is forced
// off independent of fault state. The cooldown timer, independent of OCP,
// tracks continuous operation above 20.5 A: 120 s of that enters a 120 s
// lockout with an exposed countdown.
package protection
