// internal/protocol/link.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const (
	defaultWriteQueueSize = 64
	defaultReadBufferSize = 256
)

// Link is the console's transport: one connection at a time, a buffered fire-and-forget
// write path and a read pump delivering raw bytes to a callback.
type Link struct {
	dial   Dialer
	logger *zap.Logger

	writeQueueSize int
	readBufferSize int

	onReceive func(ctx context.Context, data []byte)
	onError   func(error)

	mutex    sync.RWMutex
	conn     DeviceProtocol
	portName string
	baudRate int
	out      chan []byte
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewLink creates a closed link. A nil dialer uses NewDialer(config, logger).
func NewLink(config LinkConfig, dial Dialer, logger *zap.Logger) *Link {
	if dial == nil {
		dial = NewDialer(config, logger)
	}

	l := &Link{
		dial:           dial,
		logger:         logger.With(zap.String("component", "link")),
		writeQueueSize: config.WriteQueueSize,
		readBufferSize: config.ReadBufferSize,
	}
	if l.writeQueueSize <= 0 {
		l.writeQueueSize = defaultWriteQueueSize
	}
	if l.readBufferSize <= 0 {
		l.readBufferSize = defaultReadBufferSize
	}
	return l
}

// OnReceive sets the delivery callback. It runs on the read pump goroutine and ctx is
// cancelled when the connection closes, so a callback blocked on ctx cannot stall Close.
// Must be set before Open.
func (l *Link) OnReceive(fn func(ctx context.Context, data []byte)) {
	l.onReceive = fn
}

// OnError sets the callback invoked when the connection fails after opening
func (l *Link) OnError(fn func(error)) {
	l.onError = fn
}

// Open connects to portName. Opening the port that is already open is a no-op;
// opening a different one closes the current connection first.
func (l *Link) Open(ctx context.Context, portName string, baudRate int) error {
	l.mutex.RLock()
	same := l.conn != nil && l.portName == portName && l.baudRate == baudRate
	l.mutex.RUnlock()
	if same {
		return nil
	}

	if err := l.Close(); err != nil {
		l.logger.Warn("Failed to close previous connection", zap.Error(err))
	}

	conn, err := l.dial(portName, baudRate)
	if err != nil {
		return fmt.Errorf("open %s: %w", portName, err)
	}
	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", portName, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	out := make(chan []byte, l.writeQueueSize)

	l.mutex.Lock()
	l.conn = conn
	l.portName = portName
	l.baudRate = baudRate
	l.out = out
	l.cancel = cancel
	l.mutex.Unlock()

	l.wg.Add(2)
	go l.readPump(pumpCtx, conn)
	go l.writePump(pumpCtx, conn, out)

	l.logger.Info("Link opened",
		zap.String("port", portName),
		zap.Int("baud_rate", baudRate),
		zap.String("connection_type", string(conn.GetProtocolType())),
	)
	return nil
}

// Write queues data for the device without waiting for the write to happen
func (l *Link) Write(data []byte) error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.conn == nil {
		return ErrNotOpen
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case l.out <- buf:
		return nil
	default:
		return ErrWriteQueueFull
	}
}

// Close closes the current connection and waits for the pumps to exit
func (l *Link) Close() error {
	l.mutex.Lock()
	conn, cancel := l.conn, l.cancel
	l.conn, l.cancel, l.out = nil, nil, nil
	l.portName, l.baudRate = "", 0
	l.mutex.Unlock()

	if conn == nil {
		return nil
	}

	cancel()
	err := conn.Close()
	l.wg.Wait()

	l.logger.Info("Link closed")
	return err
}

// IsOpen reports whether a connection is established
func (l *Link) IsOpen() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.conn != nil
}

// Port returns the current port name and baud rate
func (l *Link) Port() (string, int) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.portName, l.baudRate
}

// Stats returns the statistics of the current connection
func (l *Link) Stats() (ProtocolStats, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.conn == nil {
		return ProtocolStats{}, false
	}
	return l.conn.Stats(), true
}

func (l *Link) readPump(ctx context.Context, conn DeviceProtocol) {
	defer l.wg.Done()

	for {
		data, err := conn.Read(ctx, l.readBufferSize)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.fail(conn, err)
			return
		}
		if len(data) > 0 && l.onReceive != nil {
			l.onReceive(ctx, data)
		}
	}
}

func (l *Link) writePump(ctx context.Context, conn DeviceProtocol, out <-chan []byte) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			if err := conn.Write(ctx, data); err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Link write failed", zap.Error(err), zap.Int("bytes", len(data)))
				if errors.Is(err, ErrNotOpen) {
					l.fail(conn, err)
					return
				}
			}
		}
	}
}

// fail tears down conn after a transport error unless it was already replaced
func (l *Link) fail(conn DeviceProtocol, err error) {
	l.mutex.Lock()
	if l.conn != conn {
		l.mutex.Unlock()
		return
	}
	cancel := l.cancel
	l.conn, l.cancel, l.out = nil, nil, nil
	l.mutex.Unlock()

	cancel()
	if closeErr := conn.Close(); closeErr != nil {
		l.logger.Warn("Failed to close broken connection", zap.Error(closeErr))
	}

	l.logger.Error("Link failed", zap.Error(err))
	if l.onError != nil {
		l.onError(err)
	}
}
