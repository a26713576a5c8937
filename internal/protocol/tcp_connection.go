// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"device-console/internal/model"
)

// TCPConnection implements DeviceProtocol for raw TCP serial bridges (ser2net and similar)
type TCPConnection struct {
	config     *TCPConfig
	conn       net.Conn
	logger     *zap.Logger
	mutex      sync.RWMutex
	isOpen     bool
	statsMutex sync.Mutex
	stats      ProtocolStats
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open opens the TCP connection
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	address := net.JoinHostPort(tc.config.Host, strconv.Itoa(tc.config.Port))
	tc.logger.Info("Opening TCP connection", zap.String("address", address))

	dialer := &net.Dialer{
		Timeout:   tc.config.Timeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && tc.config.KeepAlive {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	tc.conn = conn
	tc.isOpen = true

	tc.statsMutex.Lock()
	tc.stats.IsConnected = true
	tc.stats.LastActivity = time.Now()
	tc.statsMutex.Unlock()

	tc.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	if err := tc.conn.Close(); err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.conn = nil
	tc.isOpen = false

	tc.statsMutex.Lock()
	tc.stats.IsConnected = false
	tc.statsMutex.Unlock()

	tc.logger.Info("TCP connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.isOpen && tc.conn != nil
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if !tc.isOpen || tc.conn == nil {
		return ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if tc.config.WriteTimeout > 0 {
		tc.conn.SetWriteDeadline(time.Now().Add(tc.config.WriteTimeout))
	}

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.countError()
		tc.logger.Error("TCP write failed", zap.Error(err))
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}

	tc.statsMutex.Lock()
	tc.stats.recordWrite(n, time.Since(startTime))
	tc.statsMutex.Unlock()

	tc.logger.Debug("TCP write completed", zap.Int("bytes", len(data)))
	return nil
}

// Read reads whatever arrives before the read timeout. A timeout is not an error.
func (tc *TCPConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if tc.config.ReadTimeout > 0 {
		tc.conn.SetReadDeadline(time.Now().Add(tc.config.ReadTimeout))
	}

	buffer := make([]byte, maxBytes)
	n, err := tc.conn.Read(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return buffer[:n], nil
		}
		tc.countError()
		return nil, fmt.Errorf("failed to read from TCP connection: %w", err)
	}

	tc.statsMutex.Lock()
	tc.stats.recordRead(n)
	tc.statsMutex.Unlock()

	return buffer[:n], nil
}

// GetProtocolType returns the protocol type
func (tc *TCPConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Stats returns a copy of the connection statistics
func (tc *TCPConnection) Stats() ProtocolStats {
	tc.statsMutex.Lock()
	defer tc.statsMutex.Unlock()
	return tc.stats
}

func (tc *TCPConnection) countError() {
	tc.statsMutex.Lock()
	tc.stats.ErrorCount++
	tc.statsMutex.Unlock()
}
