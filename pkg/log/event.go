package log

import "time"

// Event is one log record captured at any layer.
// CBOR encoding uses integer keys for compactness so sessions can be
// captured to file and replayed.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport connection, if any (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow for wire events.
	Direction Direction `cbor:"3,keyasint,omitempty"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// Message is a short human-readable description.
	Message string `cbor:"5,keyasint,omitempty"`

	// Type-specific payloads (at most one is set).
	Frame   *FrameEvent   `cbor:"6,keyasint,omitempty"`
	Command *CommandEvent `cbor:"7,keyasint,omitempty"`
	Fault   *FaultEvent   `cbor:"8,keyasint,omitempty"`
	State   *StateEvent   `cbor:"9,keyasint,omitempty"`
	Error   *ErrorEvent   `cbor:"10,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage covers frames and commands on the wire.
	CategoryMessage Category = 0
	// CategoryState covers connection and arbitration state changes.
	CategoryState Category = 1
	// CategoryFault covers protection latch trips and clears.
	CategoryFault Category = 2
	// CategoryError covers errors at any layer.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryFault:
		return "FAULT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent describes a published or received telemetry frame.
type FrameEvent struct {
	Size      int   `cbor:"1,keyasint"`
	RelayMask uint8 `cbor:"2,keyasint"`
	FaultMask uint8 `cbor:"3,keyasint"`
	Forced    bool  `cbor:"4,keyasint,omitempty"`
}

// CommandEvent describes a received or sent command.
type CommandEvent struct {
	Type     string `cbor:"1,keyasint"`
	RelayID  string `cbor:"2,keyasint,omitempty"`
	Accepted bool   `cbor:"3,keyasint"`
}

// FaultEvent describes a protection latch trip or clear.
type FaultEvent struct {
	Kind         string `cbor:"1,keyasint"`
	Tripped      bool   `cbor:"2,keyasint"`
	SuspectRelay int    `cbor:"3,keyasint,omitempty"`
}

// StateEvent describes a state transition.
type StateEvent struct {
	From string `cbor:"1,keyasint"`
	To   string `cbor:"2,keyasint"`
}

// ErrorEvent describes an error.
type ErrorEvent struct {
	Err string `cbor:"1,keyasint"`
}
