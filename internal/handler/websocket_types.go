// internal/handler/websocket_types.go
package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"device-console/internal/series"
)

// Client types
const (
	ClientTypePlot    = "plot"
	ClientTypeConsole = "console"
)

// WebSocket message types
const (
	MessagePlot            = "plot"
	MessageConsoleEvent    = "console_event"
	MessageHistory         = "history"
	MessageSession         = "session"
	MessageCommand         = "command"
	MessageCommandResponse = "command_response"
	MessagePing            = "ping"
	MessagePong            = "pong"
	MessageError           = "error"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	Type        string          `json:"type"` // plot, console
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ConnectionManager tracks WebSocket clients. It is also the plot renderer: every
// snapshot is broadcast to the plot clients.
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
	logger  *zap.Logger

	dropped uint64
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	cm.clients[client.ID] = client
	cm.mutex.Unlock()
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Count returns the number of clients of clientType
func (cm *ConnectionManager) Count(clientType string) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	n := 0
	for _, client := range cm.clients {
		if client.Type == clientType {
			n++
		}
	}
	return n
}

// Broadcast sends message to every client of clientType. Clients whose send buffer is
// full miss the message.
func (cm *ConnectionManager) Broadcast(clientType string, message *WebSocketMessage) {
	if cm.Count(clientType) == 0 {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		cm.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for _, client := range cm.clients {
		if client.Type != clientType {
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			cm.dropped++
			cm.logger.Debug("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// RenderSnapshot broadcasts a plot frame to the plot clients
func (cm *ConnectionManager) RenderSnapshot(snapshot series.Snapshot) {
	cm.Broadcast(ClientTypePlot, &WebSocketMessage{
		Type:      MessagePlot,
		Data:      snapshot,
		Timestamp: time.Now(),
	})
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByType:           make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
		DroppedMessages:  cm.dropped,
	}

	for _, client := range cm.clients {
		stats.ByType[client.Type]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByType           map[string]int `json:"by_type"`
	Clients          []*Client      `json:"clients"`
	DroppedMessages  uint64         `json:"dropped_messages"`
}
