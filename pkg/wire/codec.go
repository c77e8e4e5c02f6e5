package wire

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode and decMode are the package-wide CBOR codec modes. Every
// frame and command goes through them.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Identical state must encode to identical bytes: canonical key
	// order, definite lengths, unix timestamps.
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder mode: %v", err))
	}

	// Decoding stays lenient: a newer device may add frame fields that
	// an older remote has to skip over.
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder mode: %v", err))
	}
}

// Marshal encodes v into deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns a CBOR encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// transportEncoding is the text-safe outer encoding for the attribute channel.
// Raw (unpadded) base64 keeps the encoded size at ceil(4n/3) bytes.
var transportEncoding = base64.RawStdEncoding

// EncodeTransport wraps raw CBOR bytes in the text-safe transport encoding.
func EncodeTransport(raw []byte) []byte {
	out := make([]byte, transportEncoding.EncodedLen(len(raw)))
	transportEncoding.Encode(out, raw)
	return out
}

// DecodeTransport unwraps the text-safe transport encoding back to raw bytes.
func DecodeTransport(text []byte) ([]byte, error) {
	out := make([]byte, transportEncoding.DecodedLen(len(text)))
	n, err := transportEncoding.Decode(out, text)
	if err != nil {
		return nil, fmt.Errorf("invalid transport encoding: %w", err)
	}
	return out[:n], nil
}
