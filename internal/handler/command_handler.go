// internal/handler/command_handler.go
package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-console/internal/protocol/frame"
	"device-console/internal/service"
	"device-console/internal/utils"
)

// CommandHandler pushes operator commands to the device
type CommandHandler struct {
	console *service.ConsoleService
	logger  *utils.ServiceLogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(console *service.ConsoleService, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		console: console,
		logger:  utils.NewServiceLogger(logger, "command-handler"),
	}
}

// RegisterRoutes registers command routes. Callers add rate limiting to router.
func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	commands := router.Group("/commands")
	{
		commands.POST("", h.SendLine)
		commands.POST("/frame", h.SendFrame)
	}
}

// SendLineRequest carries one operator line, or several separated by ';'
type SendLineRequest struct {
	Line string `json:"line" binding:"required"`
}

// SendFrameRequest carries a structured command
type SendFrameRequest struct {
	Op      *uint8 `json:"op" binding:"required"`
	Target  *uint8 `json:"target" binding:"required"`
	Payload []int  `json:"payload"`
}

// SendLine parses and pushes an operator line such as "34 0 1"
func (h *CommandHandler) SendLine(c *gin.Context) {
	var req SendLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cmds, err := h.console.SendLine(c.Request.Context(), req.Line)
	if err != nil {
		h.logger.Warn("Command line rejected", zap.String("line", req.Line), zap.Error(err))
		utils.DomainErrorResponse(c, "Failed to send command", err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Commands queued", gin.H{
		"commands": cmds,
		"count":    len(cmds),
	})
}

// SendFrame pushes one command given as op, target and payload bytes
func (h *CommandHandler) SendFrame(c *gin.Context) {
	var req SendFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payload := make([]byte, len(req.Payload))
	for i, b := range req.Payload {
		if b < 0 || b > 255 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid payload", fmt.Errorf("payload[%d] = %d out of byte range", i, b))
			return
		}
		payload[i] = byte(b)
	}

	cmd := frame.Command{Op: *req.Op, Target: *req.Target, Payload: payload}
	if err := h.console.SendCommand(c.Request.Context(), cmd); err != nil {
		utils.DomainErrorResponse(c, "Failed to send command", err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Command queued", cmd)
}
