// Package wire implements the HitchLink wire format.
//
// Two message families travel over the attribute channel:
//
//   - Telemetry frames (device -> remote): one compact snapshot of mode,
//     telemetry readings, fault and status bits, and the relay mask.
//     Frames use integer-keyed CBOR maps for density and must fit a fixed
//     raw-size budget so the transport-encoded form stays comfortably under
//     the channel's payload ceiling.
//
//   - Commands (remote -> device): relay-set and refresh requests. Commands
//     use string-keyed CBOR matching the published external interface
//     ({type, relayId, state}). The channel is fire-and-forget: invalid
//     commands are dropped without reply, and the only acknowledgment is
//     the next frame.
//
// # Transport encoding
//
// Both families are serialized to CBOR and then base64 (raw, unpadded) for
// text-safe transit. EncodeTransport/DecodeTransport implement that outer
// layer.
//
// # Packed fields
//
// StatusFlags packs seven booleans (enable-active, LVP-latched, LVP-bypass,
// OUTV-latched, OUTV-bypass, cooldown-active, startup-guard). RelayMask packs
// the six relay channels LSB-first in channel order. Bit layouts are fixed;
// encoding then decoding any pattern yields the identical pattern.
package wire
