// internal/model/session.go
package model

import "time"

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// SessionState mirrors the scheduler state for API consumers
type SessionState string

const (
	SessionIdle    SessionState = "IDLE"
	SessionRunning SessionState = "RUNNING"
)

// SessionInfo describes the current console session
type SessionInfo struct {
	State          SessionState   `json:"state"`
	Port           string         `json:"port"`
	BaudRate       int            `json:"baud_rate"`
	ConnectionType ConnectionType `json:"connection_type,omitempty"`
	Connected      bool           `json:"connected"`
	Window         int            `json:"window"`
	Source         string         `json:"source"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
}
