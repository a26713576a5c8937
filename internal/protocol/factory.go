// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TCPScheme prefixes port names that address a TCP serial bridge, e.g. tcp://10.0.0.5:4001
const TCPScheme = "tcp://"

// defaultReadTimeout bounds every transport read so Close never waits on a blocked read
const defaultReadTimeout = 100 * time.Millisecond

// Dialer builds an unopened connection for a port name and baud rate
type Dialer func(portName string, baudRate int) (DeviceProtocol, error)

// NewDialer returns the default dialer: TCP for tcp:// names, serial otherwise
func NewDialer(config LinkConfig, logger *zap.Logger) Dialer {
	return func(portName string, baudRate int) (DeviceProtocol, error) {
		if portName == "" {
			return nil, ErrPortRequired
		}
		if strings.HasPrefix(portName, TCPScheme) {
			return createTCPProtocol(strings.TrimPrefix(portName, TCPScheme), config.TCP, logger)
		}
		return createSerialProtocol(portName, baudRate, config.Serial, logger)
	}
}

// createSerialProtocol creates a serial protocol
func createSerialProtocol(portName string, baudRate int, defaults SerialConfig, logger *zap.Logger) (DeviceProtocol, error) {
	serialConfig := defaults
	serialConfig.Port = portName

	if baudRate > 0 {
		serialConfig.BaudRate = baudRate
	}
	if err := ValidateBaudRate(serialConfig.BaudRate); err != nil {
		return nil, err
	}
	if serialConfig.DataBits == 0 {
		serialConfig.DataBits = 8
	}
	if serialConfig.Timeout <= 0 {
		serialConfig.Timeout = defaultReadTimeout
	}

	logger.Info("Creating serial protocol",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(&serialConfig, logger), nil
}

// createTCPProtocol creates a TCP protocol from a host:port address
func createTCPProtocol(address string, defaults TCPConfig, logger *zap.Logger) (DeviceProtocol, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid TCP address %q: %w", address, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port number: %s", portStr)
	}

	tcpConfig := defaults
	tcpConfig.Host = host
	tcpConfig.Port = port
	if tcpConfig.ReadTimeout <= 0 {
		tcpConfig.ReadTimeout = defaultReadTimeout
	}

	logger.Info("Creating TCP protocol",
		zap.String("host", tcpConfig.Host),
		zap.Int("port", tcpConfig.Port),
	)

	return NewTCPConnection(&tcpConfig, logger), nil
}

// ValidateBaudRate accepts the standard UART rates
func ValidateBaudRate(rate int) error {
	validRates := []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}
	for _, validRate := range validRates {
		if rate == validRate {
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrInvalidBaudRate, rate)
}
