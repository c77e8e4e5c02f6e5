// Package relay owns the relay output set and the per-tick arbitration that
// decides which control source drives it.
//
// # Channels
//
// Six controllable channels (left, right, brake, tail, marker, aux) plus a
// high-current enable gate. Channel ids are stable strings (relay-left etc.)
// that never change with the operating profile; the profile only remaps the
// logical role and display label of the marker and aux channels.
//
// # Arbitration
//
// Exactly one control source governs the output set on every tick:
//
//  1. If the engine reports a block (startup guard, fault latch, cooldown),
//     everything is forced off. No exceptions.
//  2. Otherwise the 8-position selector decides: position 1 is neutral (all
//     off), position 2 is pass-through, positions 3-8 force fixed presets and
//     discard any secondary-source intent for that tick.
//  3. In pass-through, wireless command intents win over remote-signal
//     intents for the tick; whichever applies becomes the effective source.
//
// Secondary intents are never queued: an intent that arrives outside
// pass-through is gone.
//
// The Arbiter is the only writer of the OutputSet. Everything else reads.
package relay
