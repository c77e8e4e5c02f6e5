package pairing

import (
	"bytes"
	"testing"
)

func TestValidateSetupCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"12345678", false},
		{"00000000", false},
		{"1234567", true},
		{"123456789", true},
		{"1234567a", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateSetupCode(tt.code)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSetupCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
		}
	}
}

func TestDeriveSessionKey(t *testing.T) {
	k1, err := DeriveSessionKey("12345678", "device-a")
	if err != nil {
		t.Fatalf("DeriveSessionKey() error = %v", err)
	}
	if len(k1) != SessionKeySize {
		t.Fatalf("key length = %d, want %d", len(k1), SessionKeySize)
	}

	// Deterministic for the same inputs.
	k2, _ := DeriveSessionKey("12345678", "device-a")
	if !bytes.Equal(k1, k2) {
		t.Error("derivation is not deterministic")
	}

	// Distinct per device and per code.
	other, _ := DeriveSessionKey("12345678", "device-b")
	if bytes.Equal(k1, other) {
		t.Error("same key for different devices")
	}
	wrong, _ := DeriveSessionKey("87654321", "device-a")
	if bytes.Equal(k1, wrong) {
		t.Error("same key for different setup codes")
	}
}

func TestVerifyKey(t *testing.T) {
	k, _ := DeriveSessionKey("12345678", "device-a")

	if err := VerifyKey(k, k); err != nil {
		t.Errorf("VerifyKey(same) = %v", err)
	}

	bad := append([]byte(nil), k...)
	bad[0] ^= 0xff
	if err := VerifyKey(k, bad); err == nil {
		t.Error("VerifyKey accepted a wrong key")
	}
	if err := VerifyKey(k, k[:8]); err == nil {
		t.Error("VerifyKey accepted a truncated key")
	}
}
