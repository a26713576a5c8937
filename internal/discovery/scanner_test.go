package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-console/internal/model"
)

type stubScanner struct {
	kind      string
	available bool
	ports     []*Port
	err       error
}

func (s *stubScanner) Scan(ctx context.Context) ([]*Port, error) { return s.ports, s.err }
func (s *stubScanner) GetScannerType() string                     { return s.kind }
func (s *stubScanner) IsAvailable() bool                          { return s.available }

func TestScannerManager(t *testing.T) {
	m := NewScannerManager(zap.NewNop())
	m.RegisterScanner(&stubScanner{kind: "serial", available: true, ports: []*Port{
		{Name: "/dev/ttyUSB1", ConnectionType: model.ConnectionTypeSerial},
		{Name: "/dev/ttyACM0", ConnectionType: model.ConnectionTypeSerial},
	}})
	m.RegisterScanner(&stubScanner{kind: "tcp", available: false, ports: []*Port{{Name: "tcp://x:1"}}})
	m.RegisterScanner(&stubScanner{kind: "broken", available: true, err: errors.New("denied")})

	ports, err := m.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Name)
	assert.Equal(t, "/dev/ttyUSB1", ports[1].Name)

	assert.Equal(t, []string{"broken", "serial"}, m.GetAvailableScanners())

	_, err = m.ScanByType(context.Background(), "tcp")
	assert.Error(t, err)
	_, err = m.ScanByType(context.Background(), "usb")
	assert.ErrorIs(t, err, ErrUnknownScanner)
	ports, err = m.ScanByType(context.Background(), "serial")
	require.NoError(t, err)
	assert.Len(t, ports, 2)
}

func TestScannerManager_Empty(t *testing.T) {
	ports, err := NewScannerManager(zap.NewNop()).ScanAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ports)
	assert.Empty(t, ports)
}
