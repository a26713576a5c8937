// internal/handler/session_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-console/internal/service"
	"device-console/internal/utils"
)

// SessionHandler handles the console session: start/stop, port selection, plot window
type SessionHandler struct {
	console *service.ConsoleService
	logger  *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(console *service.ConsoleService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		console: console,
		logger:  utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	session := router.Group("/session")
	{
		session.GET("", h.GetSession)
		session.GET("/stats", h.GetStats)
		session.POST("/start", h.Start)
		session.POST("/stop", h.Stop)
		session.POST("/toggle", h.Toggle)
		session.POST("/disconnect", h.Disconnect)
		session.POST("/reset", h.Reset)
		session.PUT("/port", h.SetPort)
		session.PUT("/window", h.SetWindow)
	}
}

// SetPortRequest selects the device port
type SetPortRequest struct {
	Port     string `json:"port" binding:"required"`
	BaudRate int    `json:"baud_rate"`
}

// SetWindowRequest changes the plotted window
type SetWindowRequest struct {
	Window int `json:"window" binding:"required"`
}

// GetSession returns the current session
func (h *SessionHandler) GetSession(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", h.console.Session())
}

// GetStats returns exchange and transport counters
func (h *SessionHandler) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Stats retrieved", h.console.Stats())
}

// Start opens the port if needed and starts sampling
func (h *SessionHandler) Start(c *gin.Context) {
	if err := h.console.Start(c.Request.Context()); err != nil {
		h.logger.Error("Failed to start session", zap.Error(err))
		utils.DomainErrorResponse(c, "Failed to start session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session started", h.console.Session())
}

// Stop halts sampling; the port stays open
func (h *SessionHandler) Stop(c *gin.Context) {
	if err := h.console.Stop(c.Request.Context()); err != nil {
		utils.DomainErrorResponse(c, "Failed to stop session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session stopped", h.console.Session())
}

// Toggle is the Start / Stop / Continue button
func (h *SessionHandler) Toggle(c *gin.Context) {
	state, err := h.console.Toggle(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to toggle session", zap.Error(err))
		utils.DomainErrorResponse(c, "Failed to toggle session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session "+string(state), h.console.Session())
}

// Disconnect stops the session and closes the port
func (h *SessionHandler) Disconnect(c *gin.Context) {
	if err := h.console.Disconnect(c.Request.Context()); err != nil {
		utils.DomainErrorResponse(c, "Failed to disconnect", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Disconnected", h.console.Session())
}

// Reset clears all channels and pending input
func (h *SessionHandler) Reset(c *gin.Context) {
	if err := h.console.Reset(c.Request.Context()); err != nil {
		utils.DomainErrorResponse(c, "Failed to reset session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session reset", nil)
}

// SetPort selects the port and baud rate used by the next start
func (h *SessionHandler) SetPort(c *gin.Context) {
	var req SetPortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.console.SetPort(c.Request.Context(), req.Port, req.BaudRate); err != nil {
		utils.DomainErrorResponse(c, "Failed to set port", err)
		return
	}

	h.logger.Info("Port selected", zap.String("port", req.Port), zap.Int("baud_rate", req.BaudRate))
	utils.SuccessResponse(c, http.StatusOK, "Port selected", h.console.Session())
}

// SetWindow changes the number of points plotted per channel
func (h *SessionHandler) SetWindow(c *gin.Context) {
	var req SetWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.console.SetWindow(c.Request.Context(), req.Window); err != nil {
		utils.DomainErrorResponse(c, "Failed to set window", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Window updated", gin.H{"window": req.Window})
}
