// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"device-console/internal/model"
)

const (
	defaultHistorySize = 200
	subscriberBuffer   = 100
)

// EventBus fans console events out to subscribers and keeps the most recent ones so a
// newly connected console can show what happened before it joined.
type EventBus struct {
	subscribers map[int]subscription
	nextID      int
	events      chan model.ConsoleEvent
	history     []model.ConsoleEvent
	historySize int
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	ch    chan model.ConsoleEvent
	types map[model.EventType]bool
}

// NewEventBus creates a new event bus. historySize <= 0 uses the default.
func NewEventBus(historySize int, logger *zap.Logger) *EventBus {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &EventBus{
		subscribers: make(map[int]subscription),
		events:      make(chan model.ConsoleEvent, 1000),
		historySize: historySize,
		logger:      logger,
	}
}

// Start distributes events until ctx is cancelled
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish records an event and queues it for distribution. It never blocks.
func (eb *EventBus) Publish(event model.ConsoleEvent) {
	eb.mutex.Lock()
	eb.history = append(eb.history, event)
	if over := len(eb.history) - eb.historySize; over > 0 {
		eb.history = append(eb.history[:0], eb.history[over:]...)
	}
	eb.mutex.Unlock()

	select {
	case eb.events <- event:
	default:
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.EventType)),
			)
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or all events when
// none are given, and a function that cancels the subscription.
func (eb *EventBus) Subscribe(types ...model.EventType) (<-chan model.ConsoleEvent, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := subscription{ch: make(chan model.ConsoleEvent, subscriberBuffer)}
	if len(types) > 0 {
		sub.types = make(map[model.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, id)
			eb.mutex.Unlock()
			close(sub.ch)
		})
	}
}

// History returns the retained events, oldest first
func (eb *EventBus) History() []model.ConsoleEvent {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	out := make([]model.ConsoleEvent, len(eb.history))
	copy(out, eb.history)
	return out
}

// distributeEvent sends event to every matching subscriber; slow subscribers miss it
func (eb *EventBus) distributeEvent(event model.ConsoleEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		if sub.types != nil && !sub.types[event.EventType] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}
