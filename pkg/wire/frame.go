package wire

import (
	"errors"
	"fmt"
	"math"
)

// MaxFrameBytes is the raw (pre-transport-encoding) size budget for one
// telemetry frame. Frames that would exceed this are rejected by the encoder;
// the transport-encoded form then stays well under the channel payload ceiling.
const MaxFrameBytes = 200

// RelayCount is the number of controllable relay channels carried in the
// relay mask. The high-current enable gate is reported via StatusFlags, not
// the mask.
const RelayCount = 6

// ErrFrameTooLarge indicates an encoded frame exceeded MaxFrameBytes.
var ErrFrameTooLarge = errors.New("frame exceeds size budget")

// Mode indicates who is driving the relay outputs.
type Mode uint8

const (
	// ModeSelector means a fixed selector preset governs the outputs.
	ModeSelector Mode = 0

	// ModePassthrough means the selector delegates to secondary sources
	// (remote signal or wireless commands).
	ModePassthrough Mode = 1
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSelector:
		return "SELECTOR"
	case ModePassthrough:
		return "PASSTHROUGH"
	default:
		return "UNKNOWN"
	}
}

// Status flag bits packed into Frame.StatusFlags.
const (
	FlagEnableActive   uint8 = 1 << 0
	FlagLVPLatched     uint8 = 1 << 1
	FlagLVPBypass      uint8 = 1 << 2
	FlagOUTVLatched    uint8 = 1 << 3
	FlagOUTVBypass     uint8 = 1 << 4
	FlagCooldownActive uint8 = 1 << 5
	FlagStartupGuard   uint8 = 1 << 6
)

// Fault mask bits packed into Frame.FaultMask.
const (
	FaultLVP       uint8 = 1 << 0
	FaultOCP       uint8 = 1 << 1
	FaultOUTV      uint8 = 1 << 2
	FaultRelayCoil uint8 = 1 << 3

	// FaultSensor is a non-latching indicator: at least one telemetry
	// channel reported unavailable on the tick this frame was built.
	FaultSensor uint8 = 1 << 4
)

// Frame is one published snapshot of device telemetry and relay/fault state.
//
// CBOR encoding (integer keys):
//
//	{
//	  1: mode,           // uint8
//	  2: activeLabel,    // short text
//	  3: loadAmps,       // float, 2 decimals, absent if unavailable
//	  4: sourceVolts,    // float, 2 decimals, absent if unavailable
//	  5: outputVolts,    // float, 2 decimals, absent if unavailable
//	  6: faultMask,      // uint8
//	  7: statusFlags,    // uint8, 7 bits used
//	  8: relayMask,      // uint8, 6 bits used, LSB = channel 0
//	  9: cooldownSecs    // uint16, seconds remaining
//	}
type Frame struct {
	Mode         Mode     `cbor:"1,keyasint"`
	ActiveLabel  string   `cbor:"2,keyasint,omitempty"`
	LoadAmps     *float64 `cbor:"3,keyasint,omitempty"`
	SourceVolts  *float64 `cbor:"4,keyasint,omitempty"`
	OutputVolts  *float64 `cbor:"5,keyasint,omitempty"`
	FaultMask    uint8    `cbor:"6,keyasint,omitempty"`
	StatusFlags  uint8    `cbor:"7,keyasint,omitempty"`
	RelayMask    uint8    `cbor:"8,keyasint,omitempty"`
	CooldownSecs uint16   `cbor:"9,keyasint,omitempty"`
}

// Round2 rounds a telemetry value to two decimal places for the wire.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round2Ptr returns a pointer to the 2-decimal rounding of v.
// Use for populating the nullable telemetry fields.
func Round2Ptr(v float64) *float64 {
	r := Round2(v)
	return &r
}

// EncodeFrame serializes a frame to raw CBOR bytes, enforcing the size budget.
func EncodeFrame(f *Frame) ([]byte, error) {
	data, err := Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(data) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), MaxFrameBytes)
	}
	return data, nil
}

// DecodeFrame decodes raw CBOR bytes into a frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return &f, nil
}

// EncodeFrameTransport serializes a frame and applies the text-safe
// transport encoding. This is the form published on the notify attribute.
func EncodeFrameTransport(f *Frame) ([]byte, error) {
	raw, err := EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	return EncodeTransport(raw), nil
}

// DecodeFrameTransport decodes a transport-encoded frame.
func DecodeFrameTransport(text []byte) (*Frame, error) {
	raw, err := DecodeTransport(text)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(raw)
}

// PackRelayMask packs relay channel states into a mask, LSB-first in
// channel order.
func PackRelayMask(states [RelayCount]bool) uint8 {
	var mask uint8
	for i, on := range states {
		if on {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// UnpackRelayMask unpacks a relay mask into per-channel states.
func UnpackRelayMask(mask uint8) [RelayCount]bool {
	var states [RelayCount]bool
	for i := range states {
		states[i] = mask&(1<<uint(i)) != 0
	}
	return states
}

// RelayBit reports the state of one channel in a relay mask.
func RelayBit(mask uint8, channel int) bool {
	if channel < 0 || channel >= RelayCount {
		return false
	}
	return mask&(1<<uint(channel)) != 0
}
