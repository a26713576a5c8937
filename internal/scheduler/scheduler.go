// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"device-console/internal/metrics"
)

// State is the scheduler state
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Trigger identifies one of the periodic actions
type Trigger int

const (
	TriggerRender Trigger = iota
	TriggerSample
	TriggerPoll
	numTriggers
)

func (t Trigger) String() string {
	switch t {
	case TriggerRender:
		return "render"
	case TriggerSample:
		return "sample"
	case TriggerPoll:
		return "poll"
	default:
		return "unknown"
	}
}

const defaultInterval = 100 * time.Millisecond

var (
	ErrOpen    = errors.New("transport open failed")
	ErrStopped = errors.New("scheduler loop not running")
	ErrRunning = errors.New("not allowed while running")
)

// Handler receives trigger callbacks. All calls happen on the scheduler loop.
type Handler interface {
	Render()
	Sample()
	Poll()
}

// Opener opens the transport on the Idle to Running transition
type Opener func(ctx context.Context) error

// Config holds the trigger periods
type Config struct {
	RenderInterval time.Duration
	SampleInterval time.Duration
	PollInterval   time.Duration
}

func (c Config) interval(t Trigger) time.Duration {
	var d time.Duration
	switch t {
	case TriggerRender:
		d = c.RenderInterval
	case TriggerSample:
		d = c.SampleInterval
	case TriggerPoll:
		d = c.PollInterval
	}
	if d <= 0 {
		d = defaultInterval
	}
	return d
}

type task struct {
	fn   func() error
	done chan error
}

// Scheduler owns the console's single event loop. Trigger ticks, transport deliveries
// and operator edits all run on it, one at a time.
type Scheduler struct {
	config  Config
	handler Handler
	open    Opener
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	tasks    chan task
	loopDone chan struct{}
	state    atomic.Int32

	// owned by the loop goroutine
	tickers [numTriggers]*time.Ticker
}

// New creates an idle scheduler. Run must be called to start the loop.
func New(config Config, handler Handler, open Opener, m *metrics.AppMetrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		handler:  handler,
		open:     open,
		logger:   logger.With(zap.String("component", "scheduler")),
		metrics:  m,
		tasks:    make(chan task, 64),
		loopDone: make(chan struct{}),
	}
}

// Run executes the event loop until ctx is cancelled. Triggers are stopped on exit.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.loopDone)
	defer s.stopAll()

	s.logger.Info("Scheduler loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler loop stopped")
			return ctx.Err()
		case t := <-s.tasks:
			err := t.fn()
			if t.done != nil {
				t.done <- err
			}
		case <-s.tick(TriggerRender):
			s.fire(TriggerRender, s.handler.Render)
		case <-s.tick(TriggerSample):
			s.fire(TriggerSample, s.handler.Sample)
		case <-s.tick(TriggerPoll):
			s.fire(TriggerPoll, s.handler.Poll)
		}
	}
}

// tick returns the trigger's channel, or nil (never ready) while it is stopped
func (s *Scheduler) tick(t Trigger) <-chan time.Time {
	if s.tickers[t] == nil {
		return nil
	}
	return s.tickers[t].C
}

func (s *Scheduler) fire(t Trigger, fn func()) {
	if s.tickers[t] == nil {
		return
	}
	s.metrics.ObserveTrigger(t.String())
	fn()
}

// Do runs fn on the loop and waits for it to finish
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)

	select {
	case <-s.loopDone:
		return ErrStopped
	default:
	}

	select {
	case s.tasks <- task{fn: fn, done: done}:
	case <-s.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-s.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn on the loop without waiting for it to run
func (s *Scheduler) Post(ctx context.Context, fn func()) error {
	select {
	case <-s.loopDone:
		return ErrStopped
	default:
	}

	select {
	case s.tasks <- task{fn: func() error { fn(); return nil }}:
		return nil
	case <-s.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start moves Idle to Running. Already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.Do(ctx, func() error { return s.start(ctx) })
}

// Stop moves Running to Idle. When Stop returns no trigger fires until the next Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.Do(ctx, func() error {
		s.stop()
		return nil
	})
}

// Toggle flips between Idle and Running and returns the new state
func (s *Scheduler) Toggle(ctx context.Context) (State, error) {
	var next State
	err := s.Do(ctx, func() error {
		if s.State() == Running {
			s.stop()
		} else if err := s.start(ctx); err != nil {
			return err
		}
		next = s.State()
		return nil
	})
	if err != nil {
		return s.State(), err
	}
	return next, nil
}

// Mutate runs fn with the render trigger paused so no redraw observes a half-applied edit.
// Sample and poll keep running.
func (s *Scheduler) Mutate(ctx context.Context, fn func() error) error {
	return s.Do(ctx, func() error {
		running := s.State() == Running
		if running {
			s.stopTrigger(TriggerRender)
		}
		err := fn()
		if running {
			s.startTrigger(TriggerRender)
		}
		return err
	})
}

// start runs on the loop
func (s *Scheduler) start(ctx context.Context) error {
	if s.State() == Running {
		return nil
	}

	if s.open != nil {
		if err := s.open(ctx); err != nil {
			s.logger.Error("Failed to open transport, staying idle", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrOpen, err)
		}
	}

	for t := Trigger(0); t < numTriggers; t++ {
		s.startTrigger(t)
	}
	s.state.Store(int32(Running))
	s.metrics.SetRunning(true)

	s.logger.Info("Scheduler running",
		zap.Duration("render_interval", s.config.interval(TriggerRender)),
		zap.Duration("sample_interval", s.config.interval(TriggerSample)),
		zap.Duration("poll_interval", s.config.interval(TriggerPoll)),
	)
	return nil
}

// stop runs on the loop
func (s *Scheduler) stop() {
	if s.State() == Idle {
		return
	}
	s.stopAll()
	s.logger.Info("Scheduler idle")
}

func (s *Scheduler) stopAll() {
	for t := Trigger(0); t < numTriggers; t++ {
		s.stopTrigger(t)
	}
	s.state.Store(int32(Idle))
	s.metrics.SetRunning(false)
}

func (s *Scheduler) startTrigger(t Trigger) {
	if s.tickers[t] != nil {
		return
	}
	s.tickers[t] = time.NewTicker(s.config.interval(t))
}

func (s *Scheduler) stopTrigger(t Trigger) {
	if s.tickers[t] == nil {
		return
	}
	s.tickers[t].Stop()
	s.tickers[t] = nil
}
