// internal/exchange/exchange.go
package exchange

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"device-console/internal/metrics"
	"device-console/internal/protocol/frame"
)

// DefaultMailboxCapacity is used when Options.MailboxCapacity is not positive
const DefaultMailboxCapacity = 16

var ErrNoneAvailable = errors.New("no command available")

// Writer is the transport write path. Write must not block on the device.
type Writer interface {
	Write(data []byte) error
}

// Listener is notified of traffic for display purposes only
type Listener interface {
	CommandReceived(cmd frame.Command, raw []byte)
	CommandPushed(raw []byte)
}

// Options configures an Exchange
type Options struct {
	MailboxCapacity int
	Metrics         *metrics.AppMetrics
}

// Stats is a point-in-time view of exchange counters
type Stats struct {
	Decoded       uint64 `json:"decoded"`
	Pushed        uint64 `json:"pushed"`
	PushErrors    uint64 `json:"push_errors"`
	SkippedBytes  uint64 `json:"skipped_bytes"`
	MailboxDrops  uint64 `json:"mailbox_drops"`
	Pending       int    `json:"pending"`
	Buffered      int    `json:"buffered"`
	MailboxLength int    `json:"mailbox_capacity"`
}

// Exchange bridges the frame codec and the transport: outbound frames go straight to the
// writer, inbound bytes are reassembled into commands held in a bounded mailbox.
type Exchange struct {
	writer    Writer
	listeners []Listener
	logger    *zap.Logger
	metrics   *metrics.AppMetrics

	mutex    sync.Mutex
	buf      []byte
	mailbox  []frame.Command
	capacity int
	stats    Stats

	available chan struct{}
}

// New creates an exchange writing to w
func New(w Writer, opts Options, logger *zap.Logger) *Exchange {
	capacity := opts.MailboxCapacity
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}

	return &Exchange{
		writer:    w,
		logger:    logger.With(zap.String("component", "exchange")),
		metrics:   opts.Metrics,
		capacity:  capacity,
		mailbox:   make([]frame.Command, 0, capacity),
		available: make(chan struct{}, 1),
	}
}

// AddListener registers a traffic listener. Not safe to call concurrently with traffic.
func (e *Exchange) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// PushCommand hands an encoded frame to the transport unchanged
func (e *Exchange) PushCommand(raw []byte) error {
	if err := e.writer.Write(raw); err != nil {
		e.mutex.Lock()
		e.stats.PushErrors++
		e.mutex.Unlock()
		return fmt.Errorf("push command: %w", err)
	}

	e.mutex.Lock()
	e.stats.Pushed++
	e.mutex.Unlock()

	e.metrics.ObservePushed()
	e.metrics.ObserveSent(len(raw))
	for _, l := range e.listeners {
		l.CommandPushed(raw)
	}
	return nil
}

// Send encodes and pushes a command
func (e *Exchange) Send(op, target byte, payload []byte) error {
	raw, err := frame.Encode(op, target, payload)
	if err != nil {
		return err
	}
	return e.PushCommand(raw)
}

// Feed accepts bytes delivered by the transport and returns how many commands were decoded
func (e *Exchange) Feed(p []byte) int {
	e.metrics.ObserveReceived(len(p))

	type received struct {
		cmd frame.Command
		raw []byte
	}
	var decoded []received

	e.mutex.Lock()
	e.buf = append(e.buf, p...)
	for len(e.buf) > 0 {
		cmd, consumed, err := frame.Scan(e.buf)
		if err != nil {
			// incomplete: drop leading noise and wait for more bytes
			e.skip(consumed)
			e.buf = e.buf[consumed:]
			break
		}

		start := consumed - (frame.Overhead + len(cmd.Payload))
		e.skip(start)
		raw := append([]byte(nil), e.buf[start:consumed]...)
		e.buf = e.buf[consumed:]

		e.enqueue(cmd)
		decoded = append(decoded, received{cmd: cmd, raw: raw})
	}
	if len(e.buf) == 0 {
		e.buf = nil
	}
	e.mutex.Unlock()

	if len(decoded) > 0 {
		select {
		case e.available <- struct{}{}:
		default:
		}
	}

	for _, r := range decoded {
		e.metrics.ObserveDecoded(strconv.Itoa(int(r.cmd.Op)))
		for _, l := range e.listeners {
			l.CommandReceived(r.cmd, r.raw)
		}
	}
	return len(decoded)
}

// skip records n discarded bytes. Caller holds the mutex.
func (e *Exchange) skip(n int) {
	if n <= 0 {
		return
	}
	e.stats.SkippedBytes += uint64(n)
	e.metrics.ObserveResync("noise", n)
	e.logger.Debug("Discarded bytes while resynchronizing", zap.Int("bytes", n))
}

// enqueue stores cmd, dropping the oldest pending command when full. Caller holds the mutex.
func (e *Exchange) enqueue(cmd frame.Command) {
	if len(e.mailbox) >= e.capacity {
		dropped := e.mailbox[0]
		copy(e.mailbox, e.mailbox[1:])
		e.mailbox = e.mailbox[:len(e.mailbox)-1]
		e.stats.MailboxDrops++
		e.metrics.ObserveMailboxDrop()
		e.logger.Warn("Mailbox full, dropping oldest command",
			zap.Uint8("op", dropped.Op),
			zap.Uint8("target", dropped.Target),
		)
	}
	e.mailbox = append(e.mailbox, cmd)
	e.stats.Decoded++
}

// CommandAvailable reports whether PopCommand would succeed
func (e *Exchange) CommandAvailable() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.mailbox) > 0
}

// PopCommand removes and returns the oldest pending command
func (e *Exchange) PopCommand() (frame.Command, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.mailbox) == 0 {
		return frame.Command{}, ErrNoneAvailable
	}
	cmd := e.mailbox[0]
	copy(e.mailbox, e.mailbox[1:])
	e.mailbox = e.mailbox[:len(e.mailbox)-1]
	return cmd, nil
}

// Available signals after Feed decodes at least one command. Signals coalesce.
func (e *Exchange) Available() <-chan struct{} {
	return e.available
}

// Reset drops partially received bytes and pending commands
func (e *Exchange) Reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.buf = nil
	e.mailbox = e.mailbox[:0]
}

// Stats returns a copy of the counters
func (e *Exchange) Stats() Stats {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	s := e.stats
	s.Pending = len(e.mailbox)
	s.Buffered = len(e.buf)
	s.MailboxLength = e.capacity
	return s
}
