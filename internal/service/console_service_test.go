package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/console"
	"device-console/internal/discovery"
	"device-console/internal/model"
	"device-console/internal/protocol"
	"device-console/internal/protocol/frame"
	"device-console/internal/scheduler"
	"device-console/internal/series"
)

type fakeConn struct {
	inbound chan []byte
	readErr chan error

	mutex   sync.Mutex
	open    bool
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), readErr: make(chan error, 1)}
}

func (f *fakeConn) Open(ctx context.Context) error {
	f.mutex.Lock()
	f.open = true
	f.mutex.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mutex.Lock()
	f.open = false
	f.mutex.Unlock()
	return nil
}

func (f *fakeConn) IsOpen() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.open
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	f.mutex.Lock()
	f.written = append(f.written, data)
	f.mutex.Unlock()
	return nil
}

func (f *fakeConn) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case err := <-f.readErr:
		return nil, err
	case <-time.After(2 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeConn) GetProtocolType() model.ConnectionType { return model.ConnectionTypeSerial }
func (f *fakeConn) Stats() protocol.ProtocolStats         { return protocol.ProtocolStats{} }

func (f *fakeConn) wrote(want []byte) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, w := range f.written {
		if bytes.Equal(w, want) {
			return true
		}
	}
	return false
}

type recordingRenderer struct {
	mutex     sync.Mutex
	snapshots []series.Snapshot
}

func (r *recordingRenderer) RenderSnapshot(s series.Snapshot) {
	r.mutex.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mutex.Unlock()
}

func (r *recordingRenderer) last() (series.Snapshot, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.snapshots) == 0 {
		return series.Snapshot{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

type recordingEvents struct {
	mutex  sync.Mutex
	events []model.ConsoleEvent
}

func (r *recordingEvents) Publish(e model.ConsoleEvent) {
	r.mutex.Lock()
	r.events = append(r.events, e)
	r.mutex.Unlock()
}

func (r *recordingEvents) has(t model.EventType) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, e := range r.events {
		if e.EventType == t {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		Serial: config.SerialConfig{Port: "/dev/ttyTEST", BaudRate: 115200},
		Scheduler: config.SchedulerConfig{
			RenderInterval: 5 * time.Millisecond,
			SampleInterval: 5 * time.Millisecond,
			PollInterval:   5 * time.Millisecond,
		},
		Plot:     config.PlotConfig{Window: 100, LabelFormat: "line %d"},
		Exchange: config.ExchangeConfig{MailboxCapacity: 16},
		Sampling: config.SamplingConfig{Source: "synthetic", Channels: 4, SampleOp: 35},
		Poll:     config.PollConfig{Enabled: true},
	}
}

type harness struct {
	svc      *ConsoleService
	conn     *fakeConn
	renderer *recordingRenderer
	events   *recordingEvents
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{conn: newFakeConn(), renderer: &recordingRenderer{}, events: &recordingEvents{}}

	svc, err := NewConsoleService(Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
		Dialer: func(portName string, baudRate int) (protocol.DeviceProtocol, error) {
			return h.conn, nil
		},
		Renderer: h.renderer,
		Events:   h.events,
	})
	require.NoError(t, err)
	h.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestConsoleService_StartSamplesPollsRenders(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	assert.Equal(t, model.SessionIdle, h.svc.Session().State)
	require.NoError(t, h.svc.Start(ctx))

	info := h.svc.Session()
	assert.Equal(t, model.SessionRunning, info.State)
	assert.True(t, info.Connected)
	assert.Equal(t, model.ConnectionTypeSerial, info.ConnectionType)
	assert.NotNil(t, info.StartedAt)
	assert.Equal(t, "synthetic", info.Source)

	requestAll := []byte{0x3C, 0x21, 0x00, 0x00, 0x1D}
	require.Eventually(t, func() bool { return h.conn.wrote(requestAll) }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		snap, ok := h.renderer.last()
		return ok && len(snap.Series) == 4 && len(snap.Series[0].Points) > 0
	}, time.Second, time.Millisecond)

	channels := h.svc.Channels()
	require.Len(t, channels, 4)
	assert.Equal(t, "line 0", channels[0].Label)
	assert.True(t, h.events.has(model.EventSessionStarted))
	// periodic polls stay out of the console
	assert.False(t, h.events.has(model.EventCommandPushed))

	require.NoError(t, h.svc.Stop(ctx))
	assert.Equal(t, model.SessionIdle, h.svc.Session().State)
	assert.True(t, h.svc.Session().Connected)
}

func TestConsoleService_StartWithoutPort(t *testing.T) {
	cfg := testConfig()
	cfg.Serial.Port = ""
	h := newHarness(t, cfg)

	err := h.svc.Start(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrOpen)
	assert.ErrorIs(t, err, protocol.ErrPortRequired)
	assert.Equal(t, model.SessionIdle, h.svc.Session().State)
	assert.True(t, h.events.has(model.EventSessionError))
}

func TestConsoleService_FrameSource(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.Source = "frames"
	h := newHarness(t, cfg)
	require.NoError(t, h.svc.Start(context.Background()))

	reply, err := frame.Encode(frame.OpRead, 2, []byte{0x01, 0x00})
	require.NoError(t, err)
	// noise, then the reply split across two reads
	h.conn.inbound <- append([]byte{0x00, 0x11}, reply[:3]...)
	h.conn.inbound <- reply[3:]

	require.Eventually(t, func() bool {
		points, err := h.svc.Points(2, 0)
		return err == nil && len(points) == 1 && points[0].Y == 256
	}, time.Second, time.Millisecond)

	assert.True(t, h.events.has(model.EventCommandReceived))
	assert.Equal(t, uint64(1), h.svc.Stats().Exchange.Decoded)
	assert.Zero(t, h.svc.Stats().Exchange.Pending)
}

func TestConsoleService_SendLine(t *testing.T) {
	cfg := testConfig()
	cfg.Poll.Enabled = false
	h := newHarness(t, cfg)
	ctx := context.Background()

	_, err := h.svc.SendLine(ctx, "34 0 1")
	assert.ErrorIs(t, err, protocol.ErrNotOpen)

	require.NoError(t, h.svc.Start(ctx))

	cmds, err := h.svc.SendLine(ctx, "34 0 1; 35 0")
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	require.Eventually(t, func() bool {
		return h.conn.wrote([]byte{0x3C, 0x22, 0x00, 0x01, 0x01, 0x1E})
	}, time.Second, time.Millisecond)
	assert.True(t, h.events.has(model.EventCommandPushed))

	_, err = h.svc.SendLine(ctx, "hello")
	assert.ErrorIs(t, err, console.ErrBadHeader)

	require.NoError(t, h.svc.SendCommand(ctx, frame.Command{Op: 33}))
	assert.ErrorIs(t, h.svc.SendCommand(ctx, frame.Command{Op: 34, Payload: make([]byte, 300)}), frame.ErrPayloadTooLarge)
}

func TestConsoleService_ChannelEdits(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Rename(ctx, 0, "temp"), series.ErrUnknownChannel)
	assert.ErrorIs(t, h.svc.SetVisible(ctx, 0, false), series.ErrUnknownChannel)

	require.NoError(t, h.svc.Start(ctx))
	require.Eventually(t, func() bool { return len(h.svc.Channels()) == 4 }, time.Second, time.Millisecond)

	require.NoError(t, h.svc.Rename(ctx, 1, "pressure"))
	require.NoError(t, h.svc.SetVisible(ctx, 3, false))

	channels := h.svc.Channels()
	assert.Equal(t, "pressure", channels[1].Label)
	assert.False(t, channels[3].Visible)
	assert.True(t, h.events.has(model.EventChannelUpdated))

	snap := h.svc.Snapshot()
	require.Len(t, snap.Series, 4)
	assert.Empty(t, snap.Series[3].Points)
	assert.Positive(t, snap.Series[3].Total)

	require.NoError(t, h.svc.Stop(ctx))
	require.NoError(t, h.svc.Reset(ctx))
	assert.Empty(t, h.svc.Snapshot().Series)
}

func TestConsoleService_SetWindow(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.SetWindow(ctx, 5), series.ErrWindowOutOfRange)
	require.NoError(t, h.svc.SetWindow(ctx, 20))
	assert.Equal(t, 20, h.svc.Session().Window)
	assert.Equal(t, 20, h.svc.Snapshot().Window)
}

func TestConsoleService_SetPort(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.SetPort(ctx, " ", 0), protocol.ErrPortRequired)
	assert.ErrorIs(t, h.svc.SetPort(ctx, "/dev/ttyUSB3", 1234), protocol.ErrInvalidBaudRate)

	require.NoError(t, h.svc.SetPort(ctx, "tcp://127.0.0.1:4001", 0))
	info := h.svc.Session()
	assert.Equal(t, "tcp://127.0.0.1:4001", info.Port)
	assert.Equal(t, 115200, info.BaudRate)
	assert.Equal(t, model.ConnectionTypeTCP, info.ConnectionType)

	require.NoError(t, h.svc.Start(ctx))
	assert.ErrorIs(t, h.svc.SetPort(ctx, "/dev/ttyUSB0", 9600), scheduler.ErrRunning)
}

func TestConsoleService_Toggle(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	state, err := h.svc.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, state)

	state, err = h.svc.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionIdle, state)
	assert.Nil(t, h.svc.Session().StartedAt)
	assert.True(t, h.events.has(model.EventSessionStopped))
}

func TestConsoleService_LinkFailureStops(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.svc.Start(context.Background()))

	h.conn.readErr <- errors.New("device unplugged")

	require.Eventually(t, func() bool {
		return h.svc.Session().State == model.SessionIdle
	}, time.Second, time.Millisecond)
	assert.False(t, h.svc.Session().Connected)
	assert.True(t, h.events.has(model.EventSessionError))

	// the next start reopens the port
	require.NoError(t, h.svc.Start(context.Background()))
	assert.True(t, h.svc.Session().Connected)
}

func TestConsoleService_Disconnect(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	require.NoError(t, h.svc.Start(ctx))
	require.NoError(t, h.svc.Disconnect(ctx))
	info := h.svc.Session()
	assert.Equal(t, model.SessionIdle, info.State)
	assert.False(t, info.Connected)
}

func TestConsoleService_ListPortsWithoutScanners(t *testing.T) {
	h := newHarness(t, testConfig())
	ports, err := h.svc.ListPorts(context.Background(), "all")
	require.NoError(t, err)
	assert.Empty(t, ports)
	assert.Empty(t, h.svc.Scanners())

	_, err = h.svc.ListPorts(context.Background(), "bluetooth")
	assert.ErrorIs(t, err, discovery.ErrUnknownScanner)

	require.NoError(t, h.svc.Ping(context.Background()))
}

func TestNewConsoleService_BadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.Source = "adc"
	_, err := NewConsoleService(Dependencies{Config: cfg})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Plot.Window = 1
	_, err = NewConsoleService(Dependencies{Config: cfg})
	assert.ErrorIs(t, err, series.ErrWindowOutOfRange)
}
