// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/discovery"
	serialscanner "device-console/internal/discovery/serial"
	tcpscanner "device-console/internal/discovery/tcp"
	"device-console/internal/handler"
	"device-console/internal/metrics"
	"device-console/internal/routes"
	"device-console/internal/sampling"
	"device-console/internal/service"
	"device-console/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	registry    *prometheus.Registry
	metrics     *metrics.AppMetrics
	scanners    *discovery.ScannerManager
	eventBus    *handler.EventBus
	connections *handler.ConnectionManager
	websocket   *handler.WebSocketHandler
	console     *service.ConsoleService

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.initializeMetrics()
	app.initializeScanners()

	if err := app.initializeConsole(); err != nil {
		return nil, fmt.Errorf("failed to initialize console: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeMetrics creates the prometheus registry. Disabled metrics leave both nil.
func (app *Application) initializeMetrics() {
	if !app.config.Metrics.Enabled {
		return
	}
	app.registry = metrics.NewRegistry()
	app.metrics = metrics.NewAppMetrics(app.registry)
	app.logger.Info("Metrics enabled", zap.String("path", app.config.Metrics.Path))
}

// initializeScanners registers the port scanners
func (app *Application) initializeScanners() {
	app.scanners = discovery.NewScannerManager(app.logger)
	app.scanners.RegisterScanner(serialscanner.NewScanner(app.logger))
	if len(app.config.Serial.Bridges) > 0 {
		app.scanners.RegisterScanner(tcpscanner.NewScanner(app.logger, app.config.Serial.Bridges, app.config.Serial.TCP.ConnectTimeout))
	}
}

// initializeConsole wires the console service to its renderer and event stream
func (app *Application) initializeConsole() error {
	app.eventBus = handler.NewEventBus(0, app.logger)
	app.connections = handler.NewConnectionManager(app.logger)

	console, err := service.NewConsoleService(service.Dependencies{
		Config:   app.config,
		Logger:   app.logger,
		Metrics:  app.metrics,
		Renderer: app.connections,
		Events:   app.eventBus,
		Scanners: app.scanners,
		Sources:  sampling.DefaultRegistry(app.logger),
	})
	if err != nil {
		return err
	}
	app.console = console

	app.websocket = handler.NewWebSocketHandler(console, app.connections, app.eventBus, &app.config.Security, app.logger)

	app.logger.Info("Console initialized",
		zap.String("port", app.config.Serial.Port),
		zap.Int("baud_rate", app.config.Serial.BaudRate),
		zap.String("source", app.config.Sampling.Source),
		zap.Strings("scanners", app.scanners.GetAvailableScanners()),
	)
	return nil
}

// initializeServer sets up HTTP server
func (app *Application) initializeServer() {
	router := routes.NewRouter(app.config, app.logger, app.console, app.connections, app.websocket, app.registry)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}
}

// startBackgroundServices starts the event loop, the event bus and the console stream
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.wg.Add(3)
	go func() {
		defer app.wg.Done()
		if err := app.console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error("Console loop exited", zap.Error(err))
		}
	}()
	go func() {
		defer app.wg.Done()
		app.eventBus.Start(ctx)
	}()
	go func() {
		defer app.wg.Done()
		app.websocket.Run(ctx)
	}()

	if app.config.Serial.Port != "" && app.config.Scheduler.AutoStart {
		go func() {
			startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := app.console.Start(startCtx); err != nil {
				app.logger.Warn("Auto start failed, session stays idle", zap.Error(err))
			}
		}()
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// stops the triggers and closes the port
	app.cancel()
	app.wg.Wait()

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP and blocks until a shutdown signal
func (app *Application) Start() error {
	app.startBackgroundServices()

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.waitForShutdown()
	return nil
}
