// Package connection manages the remote client's link to a device,
// reconnecting automatically when the link drops.
//
// # Reconnection strategy
//
// After a lost link the client retries with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Doubling: 2s, 4s, 8s, 16s, 32s
//  3. Capped at 60 seconds, retrying at that cadence until success
//  4. Reset to 1s once a connection is established
//
// Each delay carries up to 25% random jitter so a fleet of remotes
// does not reconnect in lockstep after a device restart.
//
// A connection counts as established once the TCP dial and the hello
// exchange (session key verification) have both completed. The store's
// refresh request on reconnect is the application's concern; this
// package only reports the link state.
package connection
