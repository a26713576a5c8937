// internal/console/console.go
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"device-console/internal/protocol/frame"
)

// TimeLayout is the timestamp format of console log lines
const TimeLayout = "15:04:05.000"

var (
	ErrEmptyLine  = errors.New("empty command line")
	ErrBadHeader  = errors.New("command needs numeric op and target")
	ErrByteRange  = errors.New("numeric token out of byte range")
	ErrScriptLine = errors.New("invalid script entry")
)

// ParseLine turns an operator line such as "34 0 1" into a command. Tokens are separated
// by spaces. The first two must be numbers and become op and target. Each remaining
// numeric token becomes one byte; any other token contributes its raw bytes.
func ParseLine(line string) (frame.Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return frame.Command{}, ErrEmptyLine
	}
	if len(tokens) < 2 {
		return frame.Command{}, fmt.Errorf("%w: %q", ErrBadHeader, line)
	}

	op, ok, err := parseByte(tokens[0])
	if err != nil {
		return frame.Command{}, err
	}
	if !ok {
		return frame.Command{}, fmt.Errorf("%w: op %q", ErrBadHeader, tokens[0])
	}
	target, ok, err := parseByte(tokens[1])
	if err != nil {
		return frame.Command{}, err
	}
	if !ok {
		return frame.Command{}, fmt.Errorf("%w: target %q", ErrBadHeader, tokens[1])
	}

	var payload []byte
	for _, tok := range tokens[2:] {
		b, numeric, err := parseByte(tok)
		if err != nil {
			return frame.Command{}, err
		}
		if numeric {
			payload = append(payload, b)
		} else {
			payload = append(payload, tok...)
		}
	}
	if len(payload) > frame.MaxPayload {
		return frame.Command{}, fmt.Errorf("%w: %d bytes", frame.ErrPayloadTooLarge, len(payload))
	}

	return frame.Command{Op: op, Target: target, Payload: payload}, nil
}

// ParseScript parses several commands separated by ';', e.g. "33 0; 35 0; 34 0 1".
// Blank entries are skipped.
func ParseScript(script string) ([]frame.Command, error) {
	var cmds []frame.Command
	for i, part := range strings.Split(script, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cmd, err := ParseLine(part)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrScriptLine, i+1, err)
		}
		cmds = append(cmds, cmd)
	}
	if len(cmds) == 0 {
		return nil, ErrEmptyLine
	}
	return cmds, nil
}

// parseByte reports whether tok is a decimal number and, if so, its byte value
func parseByte(tok string) (byte, bool, error) {
	if tok == "" || tok[0] < '0' || tok[0] > '9' {
		return 0, false, nil
	}
	for i := 1; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return 0, false, nil
		}
	}

	v, err := strconv.ParseUint(tok, 10, 8)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s", ErrByteRange, tok)
	}
	return byte(v), true, nil
}

// Escape renders bytes for the console log: printable ASCII 33..126 verbatim,
// everything else as \xNN.
func Escape(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		if c > 32 && c < 127 {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "\\x%02x", c)
	}
	return sb.String()
}

// FormatLine renders one console log line: "[hh:mm:ss.mmm] <escaped bytes>"
func FormatLine(at time.Time, raw []byte) string {
	return "[" + at.Format(TimeLayout) + "] " + Escape(raw)
}
