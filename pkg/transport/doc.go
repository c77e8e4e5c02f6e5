// Package transport implements the attribute channel between the device and
// a remote client, modeled over framed TCP.
//
// The channel carries exactly four things after the hello exchange:
//
//   - Notify (device -> client): one transport-encoded telemetry frame per
//     publish. The client cannot request retransmission; it waits for the
//     next publish.
//   - Command (client -> device): one transport-encoded command, write-only,
//     no delivery acknowledgment. Application-level acknowledgment is
//     inferred from the next frame.
//   - Ping/Pong: transport liveness. Informational only; staleness is
//     judged by the client's application heartbeat over frames.
//
// A connection begins with a hello carrying the session key derived from
// the device's setup code (see pkg/pairing). The device drops the
// connection on a key mismatch without a reply.
//
// On the wire each message is a 2-byte big-endian length prefix, a 1-byte
// opcode, then the payload.
package transport
