// internal/sampling/poll.go
package sampling

import (
	"fmt"

	"device-console/internal/protocol/frame"
)

// Request is one command sent on every poll trigger
type Request struct {
	Op      byte
	Target  byte
	Payload []byte
}

// PollPolicy holds the pre-encoded frames sent on each poll trigger
type PollPolicy struct {
	frames [][]byte
}

// NewPollPolicy encodes requests once. With no requests the policy asks the device
// for everything (frame.OpRequestAll, target 0).
func NewPollPolicy(requests []Request) (*PollPolicy, error) {
	if len(requests) == 0 {
		requests = []Request{{Op: frame.OpRequestAll}}
	}

	p := &PollPolicy{frames: make([][]byte, 0, len(requests))}
	for i, req := range requests {
		b, err := frame.Encode(req.Op, req.Target, req.Payload)
		if err != nil {
			return nil, fmt.Errorf("poll request %d: %w", i, err)
		}
		p.frames = append(p.frames, b)
	}
	return p, nil
}

// Frames returns the frames to push, in configured order. Callers must not modify them.
func (p *PollPolicy) Frames() [][]byte {
	return p.frames
}
