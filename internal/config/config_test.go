package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-console/internal/series"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8084", cfg.GetServerAddr())
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.RenderInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.SampleInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, series.DefaultWindow, cfg.Plot.Window)
	assert.Equal(t, "line %d", cfg.Plot.LabelFormat)
	assert.Equal(t, 16, cfg.Exchange.MailboxCapacity)
	assert.Equal(t, "synthetic", cfg.Sampling.Source)
	assert.Equal(t, 35, cfg.Sampling.SampleOp)
	assert.True(t, cfg.Poll.Enabled)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsDebugEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: tcp://127.0.0.1:4001
  baud_rate: 9600
scheduler:
  poll_interval: 250ms
plot:
  window: 500
exchange:
  mailbox_capacity: 1
sampling:
  source: frames
poll:
  requests:
    - op: 35
      target: 0
    - op: 34
      target: 0
      payload: [1]
app:
  environment: production
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://127.0.0.1:4001", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, 500, cfg.Plot.Window)
	assert.Equal(t, 1, cfg.Exchange.MailboxCapacity)
	assert.Equal(t, "frames", cfg.Sampling.Source)
	require.Len(t, cfg.Poll.Requests, 2)
	assert.Equal(t, PollRequestConfig{Op: 34, Target: 0, Payload: []int{1}}, cfg.Poll.Requests[1])
	assert.True(t, cfg.IsProduction())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEVICE_CONSOLE_SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("DEVICE_CONSOLE_PLOT_WINDOW", "20")
	t.Setenv("DEVICE_CONSOLE_SCHEDULER_AUTO_START", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 20, cfg.Plot.Window)
	assert.True(t, cfg.Scheduler.AutoStart)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"window too small", "plot:\n  window: 5\n"},
		{"window too large", "plot:\n  window: 20000\n"},
		{"label without id", "plot:\n  label_format: line\n"},
		{"zero mailbox", "exchange:\n  mailbox_capacity: 0\n"},
		{"bad interval", "scheduler:\n  render_interval: 0s\n"},
		{"bad op", "poll:\n  requests:\n    - op: 300\n"},
		{"bad environment", "app:\n  environment: moon\n"},
		{"bad level", "logging:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_WindowErrorWraps(t *testing.T) {
	_, err := Load(writeConfig(t, "plot:\n  window: 1\n"))
	assert.ErrorIs(t, err, series.ErrWindowOutOfRange)
}
