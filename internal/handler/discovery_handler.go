// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-console/internal/service"
	"device-console/internal/utils"
)

// DiscoveryHandler lists the ports the operator can open
type DiscoveryHandler struct {
	console *service.ConsoleService
	logger  *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(console *service.ConsoleService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		console: console,
		logger:  utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers port discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	ports := router.Group("/ports")
	{
		ports.GET("", h.ListPorts)
		ports.GET("/scanners", h.ListScanners)
	}
}

// ListPorts scans for ports. Query type selects one scanner (serial, tcp); default all.
func (h *DiscoveryHandler) ListPorts(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all")

	ports, err := h.console.ListPorts(c.Request.Context(), scanType)
	if err != nil {
		h.logger.Error("Failed to scan ports", zap.String("type", scanType), zap.Error(err))
		utils.DomainErrorResponse(c, "Failed to scan ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

// ListScanners returns the available scanner types
func (h *DiscoveryHandler) ListScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", gin.H{
		"scanners": h.console.Scanners(),
	})
}
