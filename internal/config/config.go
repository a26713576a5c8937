// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"device-console/internal/series"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Plot      PlotConfig      `mapstructure:"plot"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Sampling  SamplingConfig  `mapstructure:"sampling"`
	Poll      PollConfig      `mapstructure:"poll"`
	Security  SecurityConfig  `mapstructure:"security"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SerialConfig represents the device connection. Port may be a tty/COM name or tcp://host:port.
type SerialConfig struct {
	Port           string          `mapstructure:"port"`
	BaudRate       int             `mapstructure:"baud_rate"`
	DataBits       int             `mapstructure:"data_bits"`
	StopBits       int             `mapstructure:"stop_bits"`
	Parity         string          `mapstructure:"parity"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	WriteQueueSize int             `mapstructure:"write_queue_size"`
	ReadBufferSize int             `mapstructure:"read_buffer_size"`
	Bridges        []string        `mapstructure:"bridges"`
	TCP            TCPBridgeConfig `mapstructure:"tcp"`
}

// TCPBridgeConfig applies to tcp:// ports
type TCPBridgeConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
}

// SchedulerConfig represents the trigger periods
type SchedulerConfig struct {
	RenderInterval time.Duration `mapstructure:"render_interval"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	AutoStart      bool          `mapstructure:"auto_start"` // start the session on boot when a port is set
}

// PlotConfig represents the series store and render settings
type PlotConfig struct {
	Window      int    `mapstructure:"window"`
	LabelFormat string `mapstructure:"label_format"`
}

// ExchangeConfig represents command exchange settings
type ExchangeConfig struct {
	MailboxCapacity int `mapstructure:"mailbox_capacity"`
}

// SamplingConfig selects the ingest source
type SamplingConfig struct {
	Source   string `mapstructure:"source"`
	Channels int    `mapstructure:"channels"`
	SampleOp int    `mapstructure:"sample_op"`
}

// PollConfig represents the requests sent on every poll trigger
type PollConfig struct {
	Enabled  bool                `mapstructure:"enabled"`
	Requests []PollRequestConfig `mapstructure:"requests"`
}

// PollRequestConfig is one configured request frame
type PollRequestConfig struct {
	Op      int   `mapstructure:"op"`
	Target  int   `mapstructure:"target"`
	Payload []int `mapstructure:"payload"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// MetricsConfig represents the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from an optional YAML file and DEVICE_CONSOLE_* environment
// variables. An empty path searches ./config.yaml and ./configs/config.yaml; a missing
// file is not an error, a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Environment variable support
	v.SetEnvPrefix("DEVICE_CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Serial defaults
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.timeout", "100ms")
	v.SetDefault("serial.write_queue_size", 64)
	v.SetDefault("serial.read_buffer_size", 256)
	v.SetDefault("serial.bridges", []string{})
	v.SetDefault("serial.tcp.connect_timeout", "5s")
	v.SetDefault("serial.tcp.read_timeout", "100ms")
	v.SetDefault("serial.tcp.write_timeout", "1s")
	v.SetDefault("serial.tcp.keep_alive", true)

	// Scheduler defaults
	v.SetDefault("scheduler.render_interval", "100ms")
	v.SetDefault("scheduler.sample_interval", "100ms")
	v.SetDefault("scheduler.poll_interval", "100ms")
	v.SetDefault("scheduler.auto_start", false)

	// Plot defaults
	v.SetDefault("plot.window", series.DefaultWindow)
	v.SetDefault("plot.label_format", "line %d")

	v.SetDefault("exchange.mailbox_capacity", 16)

	// Sampling defaults
	v.SetDefault("sampling.source", "synthetic")
	v.SetDefault("sampling.channels", 4)
	v.SetDefault("sampling.sample_op", 35)

	v.SetDefault("poll.enabled", true)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_requests", 20)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.rate_limit_window", "1s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// App defaults
	v.SetDefault("app.name", "device-console")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if _, err := series.NormalizeWindow(config.Plot.Window); err != nil {
		return fmt.Errorf("plot.window: %w", err)
	}
	if !strings.Contains(config.Plot.LabelFormat, "%d") {
		return fmt.Errorf("plot.label_format must contain %%d")
	}
	if config.Exchange.MailboxCapacity < 1 {
		return fmt.Errorf("exchange.mailbox_capacity must be at least 1")
	}

	for name, d := range map[string]time.Duration{
		"scheduler.render_interval": config.Scheduler.RenderInterval,
		"scheduler.sample_interval": config.Scheduler.SampleInterval,
		"scheduler.poll_interval":   config.Scheduler.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if !inByteRange(config.Sampling.SampleOp) {
		return fmt.Errorf("sampling.sample_op must be 0..255")
	}
	for i, req := range config.Poll.Requests {
		if !inByteRange(req.Op) || !inByteRange(req.Target) {
			return fmt.Errorf("poll.requests[%d]: op and target must be 0..255", i)
		}
		for _, b := range req.Payload {
			if !inByteRange(b) {
				return fmt.Errorf("poll.requests[%d]: payload bytes must be 0..255", i)
			}
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

func inByteRange(v int) bool {
	return v >= 0 && v <= 255
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
