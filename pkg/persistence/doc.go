// Package persistence stores runtime state as JSON files.
//
// Two stores live here: the device side persists protection settings and
// the active relay profile so they survive a restart, and the remote side
// keeps a cache of devices it has seen so the console can reconnect
// without a fresh discovery pass.
package persistence
