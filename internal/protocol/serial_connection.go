// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"device-console/internal/model"
)

// SerialConnection implements DeviceProtocol for serial connections
type SerialConnection struct {
	config     *SerialConfig
	port       serial.Port
	logger     *zap.Logger
	mutex      sync.RWMutex
	isOpen     bool
	statsMutex sync.Mutex
	stats      ProtocolStats
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// serialMode converts the configuration into a go.bug.st/serial mode
func serialMode(config *SerialConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}

	switch config.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode
}

// Open opens the serial connection
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	sc.logger.Info("Opening serial port",
		zap.String("port", sc.config.Port),
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	port, err := serial.Open(sc.config.Port, serialMode(sc.config))
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	// Reads return (0, nil) once the timeout elapses, which keeps the read pump responsive
	if sc.config.Timeout > 0 {
		if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	sc.port = port
	sc.isOpen = true

	sc.statsMutex.Lock()
	sc.stats.IsConnected = true
	sc.stats.LastActivity = time.Now()
	sc.statsMutex.Unlock()

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	if err := sc.port.Close(); err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.port = nil
	sc.isOpen = false

	sc.statsMutex.Lock()
	sc.stats.IsConnected = false
	sc.statsMutex.Unlock()

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.countError()
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		sc.countError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	sc.statsMutex.Lock()
	sc.stats.recordWrite(n, time.Since(startTime))
	sc.statsMutex.Unlock()

	sc.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// Read reads whatever the port delivers within the configured read timeout
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return nil, ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	buffer := make([]byte, maxBytes)
	n, err := sc.port.Read(buffer)
	if err != nil {
		sc.countError()
		return nil, fmt.Errorf("failed to read from serial port: %w", err)
	}

	sc.statsMutex.Lock()
	sc.stats.recordRead(n)
	sc.statsMutex.Unlock()

	return buffer[:n], nil
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns a copy of the connection statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	sc.statsMutex.Lock()
	defer sc.statsMutex.Unlock()
	return sc.stats
}

func (sc *SerialConnection) countError() {
	sc.statsMutex.Lock()
	sc.stats.ErrorCount++
	sc.statsMutex.Unlock()
}
