// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/handler"
	"device-console/internal/metrics"
	"device-console/internal/middleware"
	"device-console/internal/service"
	"device-console/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config      *config.Config
	logger      *zap.Logger
	console     *service.ConsoleService
	connections *handler.ConnectionManager
	websocket   *handler.WebSocketHandler
	registry    *prometheus.Registry
}

// NewRouter creates a new router instance. registry may be nil when metrics are disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	console *service.ConsoleService,
	connections *handler.ConnectionManager,
	websocket *handler.WebSocketHandler,
	registry *prometheus.Registry,
) *Router {
	return &Router{
		config:      config,
		logger:      logger,
		console:     console,
		connections: connections,
		websocket:   websocket,
		registry:    registry,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.console, r.connections, r.config, r.logger)
	sessionHandler := handler.NewSessionHandler(r.console, r.logger)
	channelHandler := handler.NewChannelHandler(r.console, r.logger)
	commandHandler := handler.NewCommandHandler(r.console, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.console, r.logger)

	healthHandler.RegisterRoutes(&router.RouterGroup)

	apiV1 := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(apiV1)
	channelHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	// command pushes reach the device, so they are rate limited
	limiter := middleware.RateLimitMiddleware(&r.config.Security, utils.NewServiceLogger(r.logger, "rate-limiter"))
	commandHandler.RegisterRoutes(apiV1.Group("", limiter))

	r.websocket.RegisterRoutes(router.Group("/ws"))

	r.addMetricsRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addMetricsRoutes exposes the prometheus registry
func (r *Router) addMetricsRoutes(router *gin.Engine) {
	if !r.config.Metrics.Enabled || r.registry == nil {
		return
	}
	router.GET(r.config.Metrics.Path, gin.WrapH(metrics.Handler(r.registry)))
}
