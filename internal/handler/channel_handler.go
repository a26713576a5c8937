// internal/handler/channel_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-console/internal/series"
	"device-console/internal/service"
	"device-console/internal/utils"
)

// ChannelHandler handles the channel registry and plotted data
type ChannelHandler struct {
	console *service.ConsoleService
	logger  *utils.ServiceLogger
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(console *service.ConsoleService, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{
		console: console,
		logger:  utils.NewServiceLogger(logger, "channel-handler"),
	}
}

// RegisterRoutes registers channel routes
func (h *ChannelHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/snapshot", h.GetSnapshot)

	channels := router.Group("/channels")
	{
		channels.GET("", h.ListChannels)

		channelRoutes := channels.Group("/:id")
		{
			channelRoutes.GET("/points", h.GetPoints)
			channelRoutes.PUT("", h.UpdateChannel)
		}
	}
}

// UpdateChannelRequest edits a channel; absent fields are left alone
type UpdateChannelRequest struct {
	Label   *string `json:"label"`
	Visible *bool   `json:"visible"`
}

// ListChannels lists channels in first-seen order
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels := h.console.Channels()
	utils.SuccessResponse(c, http.StatusOK, "Channels retrieved", gin.H{
		"channels": channels,
		"total":    len(channels),
	})
}

// GetSnapshot returns the plot as the next render draws it
func (h *ChannelHandler) GetSnapshot(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Snapshot retrieved", h.console.Snapshot())
}

// GetPoints returns the last points of one channel. Query window defaults to the session window.
func (h *ChannelHandler) GetPoints(c *gin.Context) {
	id, ok := h.channelID(c)
	if !ok {
		return
	}

	window := 0
	if w := c.Query("window"); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid window", err)
			return
		}
		if window, err = series.NormalizeWindow(n); err != nil {
			utils.DomainErrorResponse(c, "Invalid window", err)
			return
		}
	}

	points, err := h.console.Points(id, window)
	if err != nil {
		utils.DomainErrorResponse(c, "Failed to get points", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Points retrieved", gin.H{
		"channel_id": id,
		"points":     points,
	})
}

// UpdateChannel renames a channel and/or changes its visibility
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	id, ok := h.channelID(c)
	if !ok {
		return
	}

	var req UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Label == nil && req.Visible == nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Nothing to update", errors.New("label or visible is required"))
		return
	}

	ctx := c.Request.Context()
	if req.Label != nil {
		if err := h.console.Rename(ctx, id, *req.Label); err != nil {
			utils.DomainErrorResponse(c, "Failed to rename channel", err)
			return
		}
	}
	if req.Visible != nil {
		if err := h.console.SetVisible(ctx, id, *req.Visible); err != nil {
			utils.DomainErrorResponse(c, "Failed to update channel visibility", err)
			return
		}
	}

	for _, ch := range h.console.Channels() {
		if ch.ID == id {
			utils.SuccessResponse(c, http.StatusOK, "Channel updated", ch)
			return
		}
	}
	utils.DomainErrorResponse(c, "Channel removed", series.ErrUnknownChannel)
}

func (h *ChannelHandler) channelID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel id", err)
		return 0, false
	}
	return id, true
}
