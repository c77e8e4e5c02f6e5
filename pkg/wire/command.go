package wire

import (
	"errors"
	"fmt"
)

// Command validation errors. The command channel drops invalid commands
// silently; these errors exist for logging and tests, never for replies.
var (
	ErrUnknownCommandType = errors.New("unknown command type")
	ErrMissingRelayID     = errors.New("relay command missing relayId")
	ErrMissingState       = errors.New("relay command missing state")
	ErrUnexpectedPayload  = errors.New("refresh command carries payload")
)

// CommandType identifies the command shape.
type CommandType string

const (
	// CommandRelay requests a single relay be set to a desired state.
	CommandRelay CommandType = "relay"

	// CommandRefresh requests an immediate out-of-cadence frame.
	CommandRefresh CommandType = "refresh"
)

// Command is a transient request from the remote peer. Exactly two shapes
// are accepted:
//
//	{type: "relay", relayId: "relay-brake", state: true}
//	{type: "refresh"}
//
// Commands use string CBOR keys to match the published external interface.
type Command struct {
	Type    CommandType `cbor:"type"`
	RelayID string      `cbor:"relayId,omitempty"`
	State   *bool       `cbor:"state,omitempty"`
}

// NewRelayCommand builds a relay-set command.
func NewRelayCommand(relayID string, on bool) *Command {
	return &Command{Type: CommandRelay, RelayID: relayID, State: &on}
}

// NewRefreshCommand builds a refresh command.
func NewRefreshCommand() *Command {
	return &Command{Type: CommandRefresh}
}

// Validate checks the command against the two accepted shapes.
func (c *Command) Validate() error {
	switch c.Type {
	case CommandRelay:
		if c.RelayID == "" {
			return ErrMissingRelayID
		}
		if c.State == nil {
			return ErrMissingState
		}
		return nil
	case CommandRefresh:
		if c.RelayID != "" || c.State != nil {
			return ErrUnexpectedPayload
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommandType, c.Type)
	}
}

// EncodeCommand serializes a command to raw CBOR bytes.
func EncodeCommand(c *Command) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	return Marshal(c)
}

// DecodeCommand decodes and validates raw CBOR bytes into a command.
func DecodeCommand(data []byte) (*Command, error) {
	var c Command
	if err := Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// EncodeCommandTransport serializes a command and applies the text-safe
// transport encoding. This is the form written to the command attribute.
func EncodeCommandTransport(c *Command) ([]byte, error) {
	raw, err := EncodeCommand(c)
	if err != nil {
		return nil, err
	}
	return EncodeTransport(raw), nil
}

// DecodeCommandTransport decodes a transport-encoded command.
func DecodeCommandTransport(text []byte) (*Command, error) {
	raw, err := DecodeTransport(text)
	if err != nil {
		return nil, err
	}
	return DecodeCommand(raw)
}
