// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"device-console/internal/discovery"
	"device-console/internal/model"
)

// Scanner lists the local serial ports
type Scanner struct {
	logger *zap.Logger

	listPorts    func() ([]string, error)
	listDetailed func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger:       logger.With(zap.String("scanner", "serial")),
		listPorts:    serial.GetPortsList,
		listDetailed: enumerator.GetDetailedPortsList,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return string(model.ConnectionTypeSerial)
}

// IsAvailable reports true; go.bug.st/serial supports every desktop platform
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the serial ports. USB details are added when the enumerator can read them.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	details := make(map[string]*enumerator.PortDetails)
	if detailed, err := s.listDetailed(); err != nil {
		s.logger.Debug("Port details unavailable", zap.Error(err))
	} else {
		for _, d := range detailed {
			details[d.Name] = d
		}
	}

	ports := make([]*discovery.Port, 0, len(names))
	for _, name := range names {
		port := &discovery.Port{
			Name:           name,
			ConnectionType: model.ConnectionTypeSerial,
			Reachable:      true,
		}
		if d, ok := details[name]; ok && d.IsUSB {
			port.IsUSB = true
			port.VID = d.VID
			port.PID = d.PID
			port.SerialNumber = d.SerialNumber
			port.Description = d.Product
		}
		ports = append(ports, port)
	}

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}
