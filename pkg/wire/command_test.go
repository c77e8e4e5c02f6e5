package wire

import (
	"errors"
	"testing"
)

func TestCommandValidate(t *testing.T) {
	on := true

	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"RelayOK", Command{Type: CommandRelay, RelayID: "relay-brake", State: &on}, nil},
		{"RelayNoID", Command{Type: CommandRelay, State: &on}, ErrMissingRelayID},
		{"RelayNoState", Command{Type: CommandRelay, RelayID: "relay-left"}, ErrMissingState},
		{"RefreshOK", Command{Type: CommandRefresh}, nil},
		{"RefreshWithID", Command{Type: CommandRefresh, RelayID: "relay-left"}, ErrUnexpectedPayload},
		{"UnknownType", Command{Type: "reboot"}, ErrUnknownCommandType},
		{"Empty", Command{}, ErrUnknownCommandType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cmd := NewRelayCommand("relay-brake", true)

	data, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	got, err := DecodeCommand(data)
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if got.Type != CommandRelay || got.RelayID != "relay-brake" {
		t.Errorf("decoded = %+v", got)
	}
	if got.State == nil || !*got.State {
		t.Errorf("State = %v, want true", got.State)
	}
}

func TestDecodeCommandRejectsGarbage(t *testing.T) {
	if _, err := DecodeCommand([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("DecodeCommand() accepted garbage bytes")
	}
	if _, err := DecodeCommandTransport([]byte("not!base64%")); err == nil {
		t.Error("DecodeCommandTransport() accepted invalid transport encoding")
	}
}

func TestCommandTransportRoundTrip(t *testing.T) {
	text, err := EncodeCommandTransport(NewRefreshCommand())
	if err != nil {
		t.Fatalf("EncodeCommandTransport() error = %v", err)
	}
	got, err := DecodeCommandTransport(text)
	if err != nil {
		t.Fatalf("DecodeCommandTransport() error = %v", err)
	}
	if got.Type != CommandRefresh {
		t.Errorf("Type = %q, want refresh", got.Type)
	}
}
