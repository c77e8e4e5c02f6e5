// Package device runs the device-side control loop.
//
// One goroutine owns the loop. Each tick it reads the selector, samples
// telemetry, runs the protection engine, drains pending wireless
// commands and remote-signal changes into intents, and lets the arbiter
// resolve the outputs. Inputs arriving between ticks (selector moves,
// commands, remote-signal edges) are staged in interrupt-style
// mailboxes and consumed at the next tick boundary, so the protection
// verdict always precedes arbitration within a tick.
//
// Frames are published on a fixed cadence, plus a forced publish after
// every accepted command, selector move, protection trip or clear, and
// profile switch.
package device
