// Package discovery advertises and finds test controllers on the local
// network via mDNS.
//
// A device registers one service of type "_hitchlink._tcp" whose TXT
// records carry the device id, display name, protocol version, and the
// active relay profile. The remote browses for the same type and feeds
// sightings into its known-device cache.
package discovery
