// Package telemetry defines the per-tick sensor sample consumed by the
// protection engine and the Sampler interface the hardware layer implements.
package telemetry

import "time"

// Reading is a single sensor value that may be unavailable.
// The zero value is an unavailable reading.
type Reading struct {
	Value float64
	Valid bool
}

// Avail returns an available reading.
func Avail(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Unavail returns an unavailable reading.
func Unavail() Reading {
	return Reading{}
}

// Ptr returns the value as a pointer, or nil if unavailable.
// Used when populating nullable wire fields.
func (r Reading) Ptr() *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// Sample is one control-loop tick's worth of telemetry.
// Immutable for the duration of the tick that consumes it.
type Sample struct {
	// SourceVolts is the battery/source voltage.
	SourceVolts Reading

	// LoadAmps is the total load current.
	LoadAmps Reading

	// OutputVolts is the voltage at the relay outputs.
	OutputVolts Reading

	// CoilAmps is the combined relay coil current.
	CoilAmps Reading

	// At is when the sample was taken (monotonic clock).
	At time.Time
}

// AnyUnavailable reports whether any channel failed to read this tick.
// Surfaced as a non-latching sensor fault indicator.
func (s Sample) AnyUnavailable() bool {
	return !s.SourceVolts.Valid || !s.LoadAmps.Valid ||
		!s.OutputVolts.Valid || !s.CoilAmps.Valid
}

// Sampler yields one sample per control-loop tick.
// Implementations must not block; a channel that cannot be read this tick
// is reported as unavailable rather than waited for.
type Sampler interface {
	Sample(now time.Time) Sample
}
