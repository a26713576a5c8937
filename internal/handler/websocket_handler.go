// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/service"
	"device-console/internal/utils"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	commandTimeout = 5 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// WebSocketHandler serves the live plot stream and the operator console
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	console     *service.ConsoleService
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler. connections must be the same
// manager the console service renders into.
func NewWebSocketHandler(
	console *service.ConsoleService,
	connections *ConnectionManager,
	eventBus *EventBus,
	security *config.SecurityConfig,
	logger *zap.Logger,
) *WebSocketHandler {
	origins := security.AllowedOrigins
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
				return true
			}
			return slices.Contains(origins, origin)
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: connections,
		console:     console,
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/plot", h.HandlePlotConnection)
	router.GET("/console", h.HandleConsoleConnection)
	router.GET("/stats", h.GetStats)
}

// Run forwards console events to the console clients until ctx is cancelled
func (h *WebSocketHandler) Run(ctx context.Context) {
	events, cancel := h.eventBus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.connections.Broadcast(ClientTypeConsole, &WebSocketMessage{
				Type:      MessageConsoleEvent,
				Data:      event,
				Timestamp: time.Now(),
			})
		}
	}
}

// HandlePlotConnection streams a snapshot on every render
func (h *WebSocketHandler) HandlePlotConnection(c *gin.Context) {
	client, ok := h.accept(c, ClientTypePlot)
	if !ok {
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessagePlot,
		Data:      h.console.Snapshot(),
		Timestamp: time.Now(),
	})

	h.connections.Register(client)
	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleConsoleConnection streams console events and accepts command lines
func (h *WebSocketHandler) HandleConsoleConnection(c *gin.Context) {
	client, ok := h.accept(c, ClientTypeConsole)
	if !ok {
		return
	}

	now := time.Now()
	h.sendMessage(client, &WebSocketMessage{Type: MessageSession, Data: h.console.Session(), Timestamp: now})
	h.sendMessage(client, &WebSocketMessage{Type: MessageHistory, Data: h.eventBus.History(), Timestamp: now})

	h.connections.Register(client)
	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

func (h *WebSocketHandler) accept(c *gin.Context, clientType string) (*Client, bool) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return nil, false
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, sendBuffer),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", clientType),
		zap.String("remote_addr", client.RemoteAddr),
	)
	return client, true
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadLimit(maxMessageSize)
	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message: "+err.Error())
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case MessageCommand:
		h.handleCommand(client, message)
	case MessagePing:
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessagePong,
			RequestID: message.RequestID,
			Timestamp: time.Now(),
		})
	default:
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

// handleCommand pushes an operator line typed into the console
func (h *WebSocketHandler) handleCommand(client *Client, message *WebSocketMessage) {
	if client.Type != ClientTypeConsole {
		h.sendError(client, "commands are only accepted on the console stream")
		return
	}

	data, ok := message.Data.(map[string]any)
	if !ok {
		h.sendError(client, "invalid command data")
		return
	}
	line, ok := data["line"].(string)
	if !ok || strings.TrimSpace(line) == "" {
		h.sendError(client, "line is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmds, err := h.console.SendLine(ctx, line)
	result := map[string]any{
		"line":    line,
		"success": err == nil,
	}
	if err != nil {
		result["error"] = err.Error()
	} else {
		result["commands"] = cmds
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageCommandResponse,
		Data:      result,
		RequestID: message.RequestID,
		Timestamp: time.Now(),
	})
}

// sendMessage queues a message for one client. Only called before the client is
// registered or from its read goroutine.
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageError,
		Data:      map[string]any{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// GetStats returns the connected stream clients
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket stats retrieved", h.connections.GetStats())
}
