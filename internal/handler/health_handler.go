// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/model"
	"device-console/internal/service"
	"device-console/internal/utils"
)

const pingTimeout = 2 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	console     *service.ConsoleService
	connections *ConnectionManager
	config      *config.Config
	startedAt   time.Time
	logger      *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(console *service.ConsoleService, connections *ConnectionManager, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		console:     console,
		connections: connections,
		config:      config,
		startedAt:   time.Now(),
		logger:      utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports the event loop, the session and the stream clients.
// A stopped event loop makes the service unhealthy; an idle session does not.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()
	if err := h.console.Ping(ctx); err != nil {
		h.logger.Error("Event loop health check failed", zap.Error(err))
		health.Status = "unhealthy"
		health.Checks["event_loop"] = CheckResult{Status: "unhealthy", Message: err.Error()}
	} else {
		health.Checks["event_loop"] = CheckResult{Status: "healthy", Message: "Event loop responding"}
	}

	session := h.console.Session()
	sessionCheck := CheckResult{
		Status: "healthy",
		Data: map[string]any{
			"state":     session.State,
			"port":      session.Port,
			"connected": session.Connected,
		},
	}
	if session.State == model.SessionRunning && !session.Connected {
		sessionCheck.Status = "degraded"
		sessionCheck.Message = "running without an open transport"
	}
	health.Checks["session"] = sessionCheck

	stats := h.connections.GetStats()
	health.Checks["streams"] = CheckResult{
		Status: "healthy",
		Data: map[string]any{
			"plot_clients":     stats.ByType[ClientTypePlot],
			"console_clients":  stats.ByType[ClientTypeConsole],
			"dropped_messages": stats.DroppedMessages,
		},
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck reports ready once the event loop serves requests
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.console.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "event loop not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
