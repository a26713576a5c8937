// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"device-console/internal/config"
	"device-console/internal/console"
	"device-console/internal/protocol/frame"
)

const defaultLogFile = "./logs/device-console.log"

// LoggerManager manages application logging
type LoggerManager struct {
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{config: cfg}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := zapcore.ParseLevel(lm.config.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 " + console.TimeLayout)
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	filename := lm.config.Output
	if filename == "" {
		filename = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    lm.config.MaxSize, // MB
		MaxBackups: lm.config.MaxBackups,
		MaxAge:     lm.config.MaxAge, // days
		Compress:   lm.config.Compress,
	}), nil
}

// SessionLogger scopes connection events to one port
type SessionLogger struct {
	*zap.Logger
	port string
}

// NewSessionLogger creates a session-specific logger
func NewSessionLogger(baseLogger *zap.Logger, port string, baudRate int) *SessionLogger {
	return &SessionLogger{
		Logger: baseLogger.With(
			zap.String("port", port),
			zap.Int("baud_rate", baudRate),
			zap.String("component", "session"),
		),
		port: port,
	}
}

// LogConnection logs connection events
func (sl *SessionLogger) LogConnection(action string, err error) {
	if err != nil {
		sl.Error("Session connection event", zap.String("action", action), zap.Bool("success", false), zap.Error(err))
		return
	}
	sl.Info("Session connection event", zap.String("action", action), zap.Bool("success", true))
}

// LogStateChange logs a scheduler transition
func (sl *SessionLogger) LogStateChange(from, to string) {
	sl.Info("Session state changed", zap.String("from", from), zap.String("to", to))
}

// CommandLogger writes the console log: every pushed and received frame as an escaped,
// timestamped line.
type CommandLogger struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewCommandLogger creates the console log writer
func NewCommandLogger(baseLogger *zap.Logger) *CommandLogger {
	return &CommandLogger{
		logger: baseLogger.With(zap.String("component", "console")),
		now:    time.Now,
	}
}

// Received logs a decoded inbound command and returns its console line
func (cl *CommandLogger) Received(cmd frame.Command, raw []byte) string {
	line := console.FormatLine(cl.now(), raw)
	cl.logger.Info(line,
		zap.String("direction", "rx"),
		zap.Uint8("op", cmd.Op),
		zap.Uint8("target", cmd.Target),
		zap.Int("payload_len", len(cmd.Payload)),
	)
	return line
}

// Pushed logs an outbound frame and returns its console line
func (cl *CommandLogger) Pushed(raw []byte) string {
	line := console.FormatLine(cl.now(), raw)
	cl.logger.Debug(line, zap.String("direction", "tx"))
	return line
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	return &ServiceLogger{
		Logger: baseLogger.With(
			zap.String("service", serviceName),
			zap.String("component", "service"),
		),
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config any) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping", zap.String("reason", reason))
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(method, path, userAgent, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("user_agent", userAgent),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// LogRateLimitViolation logs rejected requests
func (sl *ServiceLogger) LogRateLimitViolation(clientIP, endpoint string) {
	sl.Warn("Rate limit violation",
		zap.String("client_ip", clientIP),
		zap.String("endpoint", endpoint),
		zap.String("action", "rate_limit_violation"),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
