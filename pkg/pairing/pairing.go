// Package pairing derives the shared session key that authenticates a
// remote client to a device. The trust anchor is the 8-digit setup code
// printed on the device: both sides stretch it with PBKDF2 over the device
// id as salt, then expand a fixed-size session key with HKDF. The client
// presents the key in its transport hello; a mismatch closes the connection
// before any frame or command flows.
package pairing

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SetupCodeLength is the required setup code length.
	SetupCodeLength = 8

	// SessionKeySize is the derived session key size in bytes.
	SessionKeySize = 16

	// pbkdf2Iterations balances stretch cost against the embedded
	// device's boot-time budget.
	pbkdf2Iterations = 10000
)

// hkdfInfo domain-separates the session key from any future derivations.
var hkdfInfo = []byte("hitchlink-session-v1")

// Pairing errors.
var (
	ErrInvalidSetupCode = errors.New("setup code must be 8 digits")
	ErrKeyMismatch      = errors.New("session key mismatch")
)

// ValidateSetupCode checks the printed-code format.
func ValidateSetupCode(code string) error {
	if len(code) != SetupCodeLength {
		return ErrInvalidSetupCode
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return ErrInvalidSetupCode
		}
	}
	return nil
}

// DeriveSessionKey derives the session key from a setup code and the device
// id (which serves as the per-device salt).
func DeriveSessionKey(setupCode, deviceID string) ([]byte, error) {
	if err := ValidateSetupCode(setupCode); err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, errors.New("device id required as salt")
	}

	stretched := pbkdf2.Key([]byte(setupCode), []byte(deviceID), pbkdf2Iterations, 32, sha256.New)

	key := make([]byte, SessionKeySize)
	r := hkdf.New(sha256.New, stretched, []byte(deviceID), hkdfInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}

// VerifyKey compares a presented key against the expected one in constant
// time.
func VerifyKey(expected, presented []byte) error {
	if len(expected) != SessionKeySize || !hmac.Equal(expected, presented) {
		return ErrKeyMismatch
	}
	return nil
}
