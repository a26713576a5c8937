// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"time"

	"device-console/internal/model"
)

var (
	ErrNotOpen         = errors.New("connection not open")
	ErrWriteQueueFull  = errors.New("write queue full")
	ErrPortRequired    = errors.New("port is required")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
)

// DeviceProtocol represents a byte-stream connection to a device
type DeviceProtocol interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication. Read returns an empty slice when nothing arrived before
	// the connection's read timeout.
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Protocol information
	GetProtocolType() model.ConnectionType
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// recordWrite updates write statistics
func (s *ProtocolStats) recordWrite(n int, latency time.Duration) {
	s.BytesWritten += int64(n)
	s.OperationCount++
	s.LastActivity = time.Now()
	if s.AverageLatency == 0 {
		s.AverageLatency = latency
	} else {
		s.AverageLatency = (s.AverageLatency + latency) / 2
	}
}

// recordRead updates read statistics
func (s *ProtocolStats) recordRead(n int) {
	s.BytesRead += int64(n)
	s.OperationCount++
	s.LastActivity = time.Now()
}
