// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"device-console/internal/model"
)

var ErrUnknownScanner = errors.New("scanner type not found")

// PortScanner lists ports the console can open
type PortScanner interface {
	Scan(ctx context.Context) ([]*Port, error)
	GetScannerType() string
	IsAvailable() bool
}

// Port is one openable port as shown to the operator
type Port struct {
	Name           string               `json:"name"`
	ConnectionType model.ConnectionType `json:"connection_type"`
	Description    string               `json:"description,omitempty"`
	IsUSB          bool                 `json:"is_usb"`
	VID            string               `json:"vid,omitempty"`
	PID            string               `json:"pid,omitempty"`
	SerialNumber   string               `json:"serial_number,omitempty"`
	Reachable      bool                 `json:"reachable"`
}

// ScannerManager runs every registered scanner
type ScannerManager struct {
	mu       sync.RWMutex
	scanners map[string]PortScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]PortScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a port scanner
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs the available scanners and returns their ports sorted by name.
// A failing scanner is logged and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*Port, error) {
	sm.mu.RLock()
	scanners := make(map[string]PortScanner, len(sm.scanners))
	for k, v := range sm.scanners {
		scanners[k] = v
	}
	sm.mu.RUnlock()

	all := make([]*Port, 0)
	for scannerType, scanner := range scanners {
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		ports, err := scanner.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, ports...)
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("ports_found", len(ports)),
		)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*Port, error) {
	sm.mu.RLock()
	scanner, exists := sm.scanners[scannerType]
	sm.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScanner, scannerType)
	}
	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}
	return scanner.Scan(ctx)
}

// GetAvailableScanners returns the available scanner types, sorted
func (sm *ScannerManager) GetAvailableScanners() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	available := make([]string, 0, len(sm.scanners))
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	sort.Strings(available)
	return available
}
