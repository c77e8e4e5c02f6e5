package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// lengthPrefixSize is the size of the length prefix in bytes.
	// Two bytes: the channel never carries more than a few hundred bytes.
	lengthPrefixSize = 2

	// MaxMessageSize is the maximum framed message size (opcode + payload).
	MaxMessageSize = 4096
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the message exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates a message with no opcode.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated indicates the stream ended mid-message.
	ErrFrameTruncated = errors.New("frame truncated")
)

// Opcode identifies the message kind on the attribute channel.
type Opcode uint8

const (
	// OpHello opens a session; payload is the session key.
	OpHello Opcode = 1

	// OpHelloAck confirms a session; no payload.
	OpHelloAck Opcode = 2

	// OpNotify carries one transport-encoded telemetry frame.
	OpNotify Opcode = 3

	// OpCommand carries one transport-encoded command.
	OpCommand Opcode = 4

	// OpPing checks link liveness.
	OpPing Opcode = 5

	// OpPong answers a ping.
	OpPong Opcode = 6
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpHello:
		return "hello"
	case OpHelloAck:
		return "hello-ack"
	case OpNotify:
		return "notify"
	case OpCommand:
		return "command"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Framer reads and writes opcode-tagged, length-prefixed messages over a
// byte stream. Writes are serialized; reads must come from one goroutine.
type Framer struct {
	r io.Reader
	w io.Writer

	writeMu   sync.Mutex
	lengthBuf [lengthPrefixSize]byte
}

// NewFramer creates a framer over a bidirectional stream.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{r: rw, w: rw}
}

// Write sends one message.
func (f *Framer) Write(op Opcode, payload []byte) error {
	total := 1 + len(payload)
	if total > MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, total, MaxMessageSize)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	buf := make([]byte, lengthPrefixSize+total)
	binary.BigEndian.PutUint16(buf[:lengthPrefixSize], uint16(total))
	buf[lengthPrefixSize] = byte(op)
	copy(buf[lengthPrefixSize+1:], payload)

	if _, err := f.w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Read receives one message. The returned payload is freshly allocated.
func (f *Framer) Read() (Opcode, []byte, error) {
	if _, err := io.ReadFull(f.r, f.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return 0, nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint16(f.lengthBuf[:])
	if length == 0 {
		return 0, nil, ErrMessageEmpty
	}
	if int(length) > MaxMessageSize {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("failed to read payload: %w", err)
	}

	return Opcode(buf[0]), buf[1:], nil
}
