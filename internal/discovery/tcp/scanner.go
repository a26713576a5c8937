// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"device-console/internal/discovery"
	"device-console/internal/model"
	"device-console/internal/protocol"
)

const defaultProbeTimeout = 500 * time.Millisecond

// Scanner reports the configured serial-over-TCP bridges and whether each accepts connections
type Scanner struct {
	logger       *zap.Logger
	bridges      []string
	probeTimeout time.Duration
}

// NewScanner creates a scanner for host:port or tcp://host:port bridge addresses
func NewScanner(logger *zap.Logger, bridges []string, probeTimeout time.Duration) *Scanner {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Scanner{
		logger:       logger.With(zap.String("scanner", "tcp")),
		bridges:      bridges,
		probeTimeout: probeTimeout,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return string(model.ConnectionTypeTCP)
}

// IsAvailable reports whether any bridge is configured
func (s *Scanner) IsAvailable() bool {
	return len(s.bridges) > 0
}

// Scan probes each bridge with a short dial
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.Port, error) {
	dialer := &net.Dialer{Timeout: s.probeTimeout}

	ports := make([]*discovery.Port, 0, len(s.bridges))
	for _, bridge := range s.bridges {
		if err := ctx.Err(); err != nil {
			return ports, err
		}

		address := strings.TrimPrefix(bridge, protocol.TCPScheme)
		port := &discovery.Port{
			Name:           protocol.TCPScheme + address,
			ConnectionType: model.ConnectionTypeTCP,
			Description:    "serial bridge",
		}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			s.logger.Debug("Bridge unreachable", zap.String("address", address), zap.Error(err))
		} else {
			port.Reachable = true
			conn.Close()
		}
		ports = append(ports, port)
	}
	return ports, nil
}
