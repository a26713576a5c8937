// internal/service/console_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/console"
	"device-console/internal/discovery"
	"device-console/internal/exchange"
	"device-console/internal/metrics"
	"device-console/internal/model"
	"device-console/internal/protocol"
	"device-console/internal/protocol/frame"
	"device-console/internal/sampling"
	"device-console/internal/scheduler"
	"device-console/internal/series"
	"device-console/internal/utils"
)

// Renderer receives a plot snapshot on every render trigger. Called on the scheduler loop;
// implementations must not block.
type Renderer interface {
	RenderSnapshot(snapshot series.Snapshot)
}

// EventPublisher receives console events. Called on the scheduler loop or the transport
// read path; implementations must not block.
type EventPublisher interface {
	Publish(event model.ConsoleEvent)
}

// Dependencies are the collaborators a ConsoleService is built from. Nil optional fields
// get defaults: a link dialing real ports, no-op renderer and publisher, no metrics.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.AppMetrics
	Dialer   protocol.Dialer
	Renderer Renderer
	Events   EventPublisher
	Scanners *discovery.ScannerManager
	Sources  *sampling.Registry
}

// ConsoleService wires transport, command exchange, series store and scheduler into one
// operator session.
type ConsoleService struct {
	config   *config.Config
	logger   *utils.ServiceLogger
	cmdLog   *utils.CommandLogger
	metrics  *metrics.AppMetrics
	renderer Renderer
	events   EventPublisher
	scanners *discovery.ScannerManager

	link     *protocol.Link
	exchange *exchange.Exchange
	store    *series.Store
	sched    *scheduler.Scheduler
	source   sampling.Source
	observer sampling.Observer
	poll     *sampling.PollPolicy

	window atomic.Int64

	// set during Poll so periodic requests stay out of the operator console; loop-owned
	polling bool

	mutex     sync.RWMutex
	port      string
	baudRate  int
	startedAt *time.Time
}

// NewConsoleService builds an idle session. Run must be called before any operation.
func NewConsoleService(deps Dependencies) (*ConsoleService, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	window, err := series.NormalizeWindow(cfg.Plot.Window)
	if err != nil {
		return nil, fmt.Errorf("plot window: %w", err)
	}

	sources := deps.Sources
	if sources == nil {
		sources = sampling.DefaultRegistry(logger)
	}
	source, err := sources.Create(sampling.Config{
		Kind:     cfg.Sampling.Source,
		Channels: cfg.Sampling.Channels,
		SampleOp: byte(cfg.Sampling.SampleOp),
	})
	if err != nil {
		return nil, err
	}

	poll, err := sampling.NewPollPolicy(pollRequests(cfg.Poll.Requests))
	if err != nil {
		return nil, err
	}

	s := &ConsoleService{
		config:   cfg,
		logger:   utils.NewServiceLogger(logger, "console-service"),
		cmdLog:   utils.NewCommandLogger(logger),
		metrics:  deps.Metrics,
		renderer: deps.Renderer,
		events:   deps.Events,
		scanners: deps.Scanners,
		store:    series.NewStore(cfg.Plot.LabelFormat),
		source:   source,
		poll:     poll,
		port:     cfg.Serial.Port,
		baudRate: cfg.Serial.BaudRate,
	}
	s.window.Store(int64(window))
	if observer, ok := source.(sampling.Observer); ok {
		s.observer = observer
	}

	s.link = protocol.NewLink(linkConfig(cfg), deps.Dialer, logger)
	s.link.OnReceive(s.onReceive)
	s.link.OnError(s.onLinkError)

	s.exchange = exchange.New(s.link, exchange.Options{
		MailboxCapacity: cfg.Exchange.MailboxCapacity,
		Metrics:         deps.Metrics,
	}, logger)
	s.exchange.AddListener(s)

	s.sched = scheduler.New(scheduler.Config{
		RenderInterval: cfg.Scheduler.RenderInterval,
		SampleInterval: cfg.Scheduler.SampleInterval,
		PollInterval:   cfg.Scheduler.PollInterval,
	}, s, s.openLink, deps.Metrics, logger)

	return s, nil
}

func linkConfig(cfg *config.Config) protocol.LinkConfig {
	return protocol.LinkConfig{
		WriteQueueSize: cfg.Serial.WriteQueueSize,
		ReadBufferSize: cfg.Serial.ReadBufferSize,
		Serial: protocol.SerialConfig{
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			StopBits: cfg.Serial.StopBits,
			Parity:   cfg.Serial.Parity,
			Timeout:  cfg.Serial.Timeout,
		},
		TCP: protocol.TCPConfig{
			KeepAlive:    cfg.Serial.TCP.KeepAlive,
			Timeout:      cfg.Serial.TCP.ConnectTimeout,
			ReadTimeout:  cfg.Serial.TCP.ReadTimeout,
			WriteTimeout: cfg.Serial.TCP.WriteTimeout,
		},
	}
}

func pollRequests(reqs []config.PollRequestConfig) []sampling.Request {
	out := make([]sampling.Request, 0, len(reqs))
	for _, r := range reqs {
		payload := make([]byte, len(r.Payload))
		for i, b := range r.Payload {
			payload[i] = byte(b)
		}
		out = append(out, sampling.Request{Op: byte(r.Op), Target: byte(r.Target), Payload: payload})
	}
	return out
}

// Run runs the session's event loop until ctx is cancelled, then closes the transport
func (s *ConsoleService) Run(ctx context.Context) error {
	s.logger.LogServiceStart(s.config.App.Version, map[string]any{
		"port":      s.config.Serial.Port,
		"baud_rate": s.config.Serial.BaudRate,
		"source":    s.source.Name(),
		"window":    s.window.Load(),
	})

	err := s.sched.Run(ctx)
	if closeErr := s.link.Close(); closeErr != nil {
		s.logger.Warn("Failed to close link", zap.Error(closeErr))
	}
	s.logger.LogServiceStop("context done")
	return err
}

// Render pushes the current plot snapshot to the renderer
func (s *ConsoleService) Render() {
	snapshot := s.store.Snapshot(int(s.window.Load()))
	s.metrics.SetChannels(len(snapshot.Series))
	if s.renderer != nil {
		s.renderer.RenderSnapshot(snapshot)
	}
}

// Sample ingests whatever the source yields
func (s *ConsoleService) Sample() {
	for _, sample := range s.source.Sample() {
		s.store.Ingest(sample.Channel, sample.Value)
	}
}

// Poll pushes the configured request frames
func (s *ConsoleService) Poll() {
	if !s.config.Poll.Enabled {
		return
	}
	s.polling = true
	defer func() { s.polling = false }()

	for _, raw := range s.poll.Frames() {
		if err := s.exchange.PushCommand(raw); err != nil {
			s.logger.Debug("Poll request not sent", zap.Error(err))
			return
		}
	}
}

// CommandReceived implements exchange.Listener
func (s *ConsoleService) CommandReceived(cmd frame.Command, raw []byte) {
	line := s.cmdLog.Received(cmd, raw)
	event := model.NewConsoleEvent(model.EventCommandReceived, line)
	op, target := cmd.Op, cmd.Target
	event.Op, event.Target, event.Raw = &op, &target, raw
	s.publish(event)
}

// CommandPushed implements exchange.Listener
func (s *ConsoleService) CommandPushed(raw []byte) {
	line := s.cmdLog.Pushed(raw)
	if s.polling {
		return
	}
	event := model.NewConsoleEvent(model.EventCommandPushed, line)
	if len(raw) >= frame.HeaderSize {
		op, target := raw[1], raw[2]
		event.Op, event.Target = &op, &target
	}
	event.Raw = raw
	s.publish(event)
}

func (s *ConsoleService) publish(event model.ConsoleEvent) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// onReceive runs on the link's read pump and moves the bytes onto the loop
func (s *ConsoleService) onReceive(ctx context.Context, data []byte) {
	err := s.sched.Post(ctx, func() {
		if s.exchange.Feed(data) > 0 {
			s.drainMailbox()
		}
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("Dropped received bytes", zap.Int("bytes", len(data)), zap.Error(err))
	}
}

// drainMailbox hands every pending command to the frame-fed source, if any
func (s *ConsoleService) drainMailbox() {
	for s.exchange.CommandAvailable() {
		cmd, err := s.exchange.PopCommand()
		if err != nil {
			return
		}
		if s.observer != nil {
			s.observer.Observe(cmd)
		}
	}
}

// onLinkError stops the triggers after the transport fails. The next Start reopens it.
func (s *ConsoleService) onLinkError(err error) {
	port, baud := s.target()
	utils.NewSessionLogger(s.logger.Logger, port, baud).LogConnection("lost", err)
	s.publish(model.NewConsoleEvent(model.EventSessionError, "connection lost: "+err.Error()))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil && !errors.Is(err, scheduler.ErrStopped) {
			s.logger.Warn("Failed to stop after link error", zap.Error(err))
		}
	}()
}

// openLink is the scheduler's opener; it runs on the loop
func (s *ConsoleService) openLink(ctx context.Context) error {
	port, baud := s.target()
	if port == "" {
		return protocol.ErrPortRequired
	}

	err := s.link.Open(ctx, port, baud)
	utils.NewSessionLogger(s.logger.Logger, port, baud).LogConnection("open", err)
	return err
}

func (s *ConsoleService) target() (string, int) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.port, s.baudRate
}

// Start begins sampling, polling and rendering, opening the transport first
func (s *ConsoleService) Start(ctx context.Context) error {
	wasRunning := s.sched.State() == scheduler.Running
	if err := s.sched.Start(ctx); err != nil {
		s.publish(model.NewConsoleEvent(model.EventSessionError, err.Error()))
		return err
	}
	if !wasRunning {
		s.markStarted()
	}
	return nil
}

// Stop halts the triggers. The transport stays open.
func (s *ConsoleService) Stop(ctx context.Context) error {
	wasRunning := s.sched.State() == scheduler.Running
	if err := s.sched.Stop(ctx); err != nil {
		return err
	}
	if wasRunning {
		s.markStopped()
	}
	return nil
}

// Toggle switches between running and idle, the console's Start/Stop/Continue button
func (s *ConsoleService) Toggle(ctx context.Context) (model.SessionState, error) {
	state, err := s.sched.Toggle(ctx)
	if err != nil {
		s.publish(model.NewConsoleEvent(model.EventSessionError, err.Error()))
		return sessionState(state), err
	}
	if state == scheduler.Running {
		s.markStarted()
	} else {
		s.markStopped()
	}
	return sessionState(state), nil
}

func (s *ConsoleService) markStarted() {
	now := time.Now()
	s.mutex.Lock()
	s.startedAt = &now
	port, baud := s.port, s.baudRate
	s.mutex.Unlock()
	utils.NewSessionLogger(s.logger.Logger, port, baud).LogStateChange(scheduler.Idle.String(), scheduler.Running.String())
	s.publish(model.NewConsoleEvent(model.EventSessionStarted, "session started on "+port))
}

func (s *ConsoleService) markStopped() {
	s.mutex.Lock()
	s.startedAt = nil
	port, baud := s.port, s.baudRate
	s.mutex.Unlock()
	utils.NewSessionLogger(s.logger.Logger, port, baud).LogStateChange(scheduler.Running.String(), scheduler.Idle.String())
	s.publish(model.NewConsoleEvent(model.EventSessionStopped, "session stopped"))
}

// Disconnect stops the session and closes the transport
func (s *ConsoleService) Disconnect(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.sched.Do(ctx, s.link.Close)
}

// SetPort selects the port and baud rate used by the next Start. Zero baud keeps the
// configured rate. Not allowed while running.
func (s *ConsoleService) SetPort(ctx context.Context, port string, baudRate int) error {
	port = strings.TrimSpace(port)
	if port == "" {
		return protocol.ErrPortRequired
	}
	if baudRate == 0 {
		baudRate = s.config.Serial.BaudRate
	}
	if !strings.HasPrefix(port, protocol.TCPScheme) {
		if err := protocol.ValidateBaudRate(baudRate); err != nil {
			return err
		}
	}

	return s.sched.Do(ctx, func() error {
		if s.sched.State() == scheduler.Running {
			return fmt.Errorf("change port: %w", scheduler.ErrRunning)
		}
		s.mutex.Lock()
		s.port, s.baudRate = port, baudRate
		s.mutex.Unlock()
		return nil
	})
}

// SendLine parses an operator line (or several separated by ';') and pushes the frames
func (s *ConsoleService) SendLine(ctx context.Context, line string) ([]frame.Command, error) {
	cmds, err := console.ParseScript(line)
	if err != nil {
		return nil, err
	}

	err = s.sched.Do(ctx, func() error {
		for _, cmd := range cmds {
			if err := s.exchange.Send(cmd.Op, cmd.Target, cmd.Payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// SendCommand pushes one command
func (s *ConsoleService) SendCommand(ctx context.Context, cmd frame.Command) error {
	raw, err := cmd.Encode()
	if err != nil {
		return err
	}
	return s.sched.Do(ctx, func() error { return s.exchange.PushCommand(raw) })
}

// Rename changes a channel label with rendering paused
func (s *ConsoleService) Rename(ctx context.Context, id int, label string) error {
	return s.sched.Mutate(ctx, func() error {
		if err := s.store.Rename(id, label); err != nil {
			return err
		}
		s.publish(model.NewConsoleEvent(model.EventChannelUpdated, fmt.Sprintf("channel %d renamed to %q", id, label)))
		return nil
	})
}

// SetVisible shows or hides a channel with rendering paused
func (s *ConsoleService) SetVisible(ctx context.Context, id int, visible bool) error {
	return s.sched.Mutate(ctx, func() error {
		if err := s.store.SetVisible(id, visible); err != nil {
			return err
		}
		s.publish(model.NewConsoleEvent(model.EventChannelUpdated, fmt.Sprintf("channel %d visible=%t", id, visible)))
		return nil
	})
}

// SetWindow changes the plotted window size
func (s *ConsoleService) SetWindow(ctx context.Context, w int) error {
	w, err := series.NormalizeWindow(w)
	if err != nil {
		return err
	}
	return s.sched.Mutate(ctx, func() error {
		s.window.Store(int64(w))
		return nil
	})
}

// Reset clears all channels, partial input and pending commands
func (s *ConsoleService) Reset(ctx context.Context) error {
	return s.sched.Mutate(ctx, func() error {
		s.store.Reset()
		s.exchange.Reset()
		s.publish(model.NewConsoleEvent(model.EventChannelUpdated, "session reset"))
		return nil
	})
}

// Snapshot returns the plot as the next render would draw it
func (s *ConsoleService) Snapshot() series.Snapshot {
	return s.store.Snapshot(int(s.window.Load()))
}

// Channels returns the registry in first-seen order
func (s *ConsoleService) Channels() []series.Channel {
	return s.store.Channels()
}

// Points returns the last w points of a channel; zero w uses the session window
func (s *ConsoleService) Points(id, w int) ([]series.Point, error) {
	if w == 0 {
		w = int(s.window.Load())
	}
	return s.store.Window(id, w)
}

// Session describes the current session
func (s *ConsoleService) Session() model.SessionInfo {
	s.mutex.RLock()
	info := model.SessionInfo{
		State:     sessionState(s.sched.State()),
		Port:      s.port,
		BaudRate:  s.baudRate,
		Window:    int(s.window.Load()),
		Source:    s.source.Name(),
		StartedAt: s.startedAt,
	}
	s.mutex.RUnlock()

	info.Connected = s.link.IsOpen()
	if info.Port != "" {
		info.ConnectionType = model.ConnectionTypeSerial
		if strings.HasPrefix(info.Port, protocol.TCPScheme) {
			info.ConnectionType = model.ConnectionTypeTCP
		}
	}
	return info
}

// Stats reports exchange counters and, when connected, transport counters
type Stats struct {
	Exchange  exchange.Stats          `json:"exchange"`
	Transport *protocol.ProtocolStats `json:"transport,omitempty"`
}

// Stats returns traffic counters
func (s *ConsoleService) Stats() Stats {
	stats := Stats{Exchange: s.exchange.Stats()}
	if ps, ok := s.link.Stats(); ok {
		stats.Transport = &ps
	}
	return stats
}

// ListPorts lists the ports the operator can choose from. An empty or "all" scanner type
// runs every scanner.
func (s *ConsoleService) ListPorts(ctx context.Context, scannerType string) ([]*discovery.Port, error) {
	if s.scanners == nil {
		if scannerType == "" || scannerType == "all" {
			return []*discovery.Port{}, nil
		}
		return nil, fmt.Errorf("%w: %s", discovery.ErrUnknownScanner, scannerType)
	}
	if scannerType == "" || scannerType == "all" {
		return s.scanners.ScanAll(ctx)
	}
	return s.scanners.ScanByType(ctx, scannerType)
}

// Scanners returns the available port scanner types
func (s *ConsoleService) Scanners() []string {
	if s.scanners == nil {
		return []string{}
	}
	return s.scanners.GetAvailableScanners()
}

// Ping reports whether the event loop is serving requests
func (s *ConsoleService) Ping(ctx context.Context) error {
	return s.sched.Do(ctx, func() error { return nil })
}

func sessionState(state scheduler.State) model.SessionState {
	if state == scheduler.Running {
		return model.SessionRunning
	}
	return model.SessionIdle
}
