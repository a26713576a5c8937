// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventCommandReceived EventType = "COMMAND_RECEIVED"
	EventCommandPushed   EventType = "COMMAND_PUSHED"
	EventSessionStarted  EventType = "SESSION_STARTED"
	EventSessionStopped  EventType = "SESSION_STOPPED"
	EventSessionError    EventType = "SESSION_ERROR"
	EventChannelUpdated  EventType = "CHANNEL_UPDATED"
)

// ConsoleEvent is one line of the operator console
type ConsoleEvent struct {
	ID        uuid.UUID `json:"id"`
	EventType EventType `json:"event_type"`
	Text      string    `json:"text"`
	Op        *uint8    `json:"op,omitempty"`
	Target    *uint8    `json:"target,omitempty"`
	Raw       []byte    `json:"raw,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewConsoleEvent stamps a new event with an id and the current time
func NewConsoleEvent(eventType EventType, text string) ConsoleEvent {
	return ConsoleEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Text:      text,
		Timestamp: time.Now(),
	}
}
