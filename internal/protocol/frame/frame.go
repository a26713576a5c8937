// internal/protocol/frame/frame.go
package frame

import (
	"errors"
	"fmt"
)

// Frame layout: start | op | target | length | payload[length] | checksum
const (
	StartMarker byte = 0x3C // '<'
	HeaderSize       = 4
	Overhead         = HeaderSize + 1
	MaxPayload       = 255
	MaxFrameSize     = Overhead + MaxPayload
)

// Well-known operation codes used by the console's poll policy
const (
	OpRequestAll byte = 33
	OpWrite      byte = 34
	OpRead       byte = 35
)

var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrIncomplete       = errors.New("incomplete frame")
	ErrBadStart         = errors.New("bad start marker")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Command is a decoded frame
type Command struct {
	Op      byte   `json:"op"`
	Target  byte   `json:"target"`
	Payload []byte `json:"payload"`
}

// Encode encodes the command into a frame
func (c Command) Encode() ([]byte, error) {
	return Encode(c.Op, c.Target, c.Payload)
}

func (c Command) String() string {
	return fmt.Sprintf("op=%d target=%d len=%d payload=% x", c.Op, c.Target, len(c.Payload), c.Payload)
}

// Checksum returns the XOR fold of b
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}

// Encode builds a checksummed frame. The payload is copied.
func Encode(op, target byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayload)
	}

	msg := make([]byte, 0, Overhead+len(payload))
	msg = append(msg, StartMarker, op, target, byte(len(payload)))
	msg = append(msg, payload...)
	msg = append(msg, Checksum(msg))
	return msg, nil
}

// Decode parses one frame at the start of b and reports how many bytes it occupied.
func Decode(b []byte) (Command, int, error) {
	if len(b) < Overhead {
		return Command{}, 0, ErrIncomplete
	}
	if b[0] != StartMarker {
		return Command{}, 0, ErrBadStart
	}

	total := Overhead + int(b[3])
	if len(b) < total {
		return Command{}, 0, ErrIncomplete
	}

	if Checksum(b[:total-1]) != b[total-1] {
		return Command{}, 0, ErrChecksumMismatch
	}

	payload := make([]byte, total-Overhead)
	copy(payload, b[HeaderSize:total-1])

	return Command{Op: b[1], Target: b[2], Payload: payload}, total, nil
}

// Scan looks for the first decodable frame in buf.
//
// consumed is always the number of leading bytes the caller may discard. When err is
// ErrIncomplete the bytes from consumed onward must be kept until more input arrives.
// A candidate that is still incomplete is abandoned if a later candidate already decodes,
// so a stray start marker with a large length byte cannot stall the stream.
func Scan(buf []byte) (cmd Command, consumed int, err error) {
	pending := -1

	for i := 0; i < len(buf); i++ {
		if buf[i] != StartMarker {
			continue
		}

		c, n, err := Decode(buf[i:])
		switch {
		case err == nil:
			return c, i + n, nil
		case errors.Is(err, ErrIncomplete):
			if pending < 0 {
				pending = i
			}
		}
	}

	if pending >= 0 {
		return Command{}, pending, ErrIncomplete
	}
	return Command{}, len(buf), ErrIncomplete
}
