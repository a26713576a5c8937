package serial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"device-console/internal/model"
)

func TestScanner_Scan(t *testing.T) {
	s := NewScanner(zap.NewNop())
	s.listPorts = func() ([]string, error) { return []string{"/dev/ttyS0", "/dev/ttyUSB0"}, nil }
	s.listDetailed = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1", Product: "FT232R"},
		}, nil
	}

	ports, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 2)

	assert.Equal(t, "/dev/ttyS0", ports[0].Name)
	assert.False(t, ports[0].IsUSB)
	assert.Equal(t, model.ConnectionTypeSerial, ports[0].ConnectionType)

	assert.True(t, ports[1].IsUSB)
	assert.Equal(t, "0403", ports[1].VID)
	assert.Equal(t, "6001", ports[1].PID)
	assert.Equal(t, "FT232R", ports[1].Description)
}

func TestScanner_DetailsUnavailable(t *testing.T) {
	s := NewScanner(zap.NewNop())
	s.listPorts = func() ([]string, error) { return []string{"COM3"}, nil }
	s.listDetailed = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no udev") }

	ports, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "COM3", ports[0].Name)
}

func TestScanner_ListError(t *testing.T) {
	s := NewScanner(zap.NewNop())
	s.listPorts = func() ([]string, error) { return nil, errors.New("permission denied") }

	_, err := s.Scan(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "SERIAL", s.GetScannerType())
}
