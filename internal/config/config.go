package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/file"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

// Config holds all application configuration.
// Values come from the environment (optionally seeded from a .env file in
// the working directory), then Options are applied on top.
//
// Environment Variables:
// Job Status Service:
// - JSS_URL: base URL of the job status service (default: http://localhost:8080)
// - UPLOAD_USER: user whose jobs are monitored (default: $USER)
// - REQUEST_RATE: max outbound requests per second (default: 10)
//
// Resilience:
// - RETRY_ATTEMPTS: attempts per request before giving up (default: 5)
// - RETRY_DELAY: wait between request attempts (default: 10s)
// - RECONNECT_DELAY: wait before re-opening a dropped event stream (default: 5s)
// - RESYNC_CRON: schedule for full job list refreshes (default: @every 1m)
//
// Presentation:
// - ALERT_DURATION: how long alerts stay visible (default: 2s)
//
// System:
// - DATA_DIR: local cache directory (default: ~/.fileupload)
// - HTTP_ADDR: local status API address (default: 127.0.0.1:7171)
// - METRICS_ENABLED: expose /metrics (default: false)
// - LOG_LEVEL: debug, info, warn, error (default: info)
type Config struct {
	JSS    JSSConfig    `json:"jss"`
	Retry  RetryConfig  `json:"retry"`
	Stream StreamConfig `json:"stream"`
	Alerts AlertsConfig `json:"alerts"`
	HTTP   HTTPConfig   `json:"http"`
	System SystemConfig `json:"system"`
}

type JSSConfig struct {
	URL         string  `json:"url"`
	User        string  `json:"user"`
	RequestRate float64 `json:"request_rate"`
}

type RetryConfig struct {
	Attempts int           `json:"attempts"`
	Delay    time.Duration `json:"delay"`
}

type StreamConfig struct {
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	ResyncCron     string        `json:"resync_cron"`
}

type AlertsConfig struct {
	Duration time.Duration `json:"duration"`
}

type HTTPConfig struct {
	Addr           string `json:"addr"`
	MetricsEnabled bool   `json:"metrics_enabled"`
}

type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
}

const dbFileName = "upload.db"

// DBPath is the sqlite job cache inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, dbFileName)
}

// SettingsPath is the user-editable settings file inside DataDir.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.System.DataDir, settingsFileName)
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithJSSURL(u string) Option {
	return func(c *Config) {
		if strings.TrimSpace(u) != "" {
			c.JSS.URL = u
		}
	}
}

func WithUser(user string) Option {
	return func(c *Config) {
		if strings.TrimSpace(user) != "" {
			c.JSS.User = user
		}
	}
}

func WithDataDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) != "" {
			c.System.DataDir = dir
		}
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if strings.TrimSpace(addr) != "" {
			c.HTTP.Addr = addr
		}
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) {
		if strings.TrimSpace(level) != "" {
			c.System.LogLevel = level
		}
	}
}

func WithMetrics(enabled bool) Option {
	return func(c *Config) { c.HTTP.MetricsEnabled = enabled }
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Ignoring unreadable .env file: %v", err)
	}

	config := &Config{
		JSS: JSSConfig{
			URL:         getEnvString("JSS_URL", "http://localhost:8080"),
			User:        getEnvString("UPLOAD_USER", os.Getenv("USER")),
			RequestRate: getEnvFloat("REQUEST_RATE", 10),
		},
		Retry: RetryConfig{
			Attempts: getEnvInt("RETRY_ATTEMPTS", 5),
			Delay:    getEnvDuration("RETRY_DELAY", 10*time.Second),
		},
		Stream: StreamConfig{
			ReconnectDelay: getEnvDuration("RECONNECT_DELAY", 5*time.Second),
			ResyncCron:     getEnvString("RESYNC_CRON", "@every 1m"),
		},
		Alerts: AlertsConfig{
			Duration: getEnvDuration("ALERT_DURATION", 2*time.Second),
		},
		HTTP: HTTPConfig{
			Addr:           getEnvString("HTTP_ADDR", "127.0.0.1:7171"),
			MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		},
		System: SystemConfig{
			DataDir:  getEnvString("DATA_DIR", defaultDataDir()),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}
	config.System.DataDir = file.ExpandHome(config.System.DataDir)

	log.Debug("Config: %+v", config)

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Load is NewFromEnv plus the user's saved settings file, which wins over
// the environment when present. Options win over both.
func Load(opts ...Option) (*Config, error) {
	cfg, err := NewFromEnv(opts...)
	if err != nil {
		return nil, err
	}
	settings, err := LoadRuntimeSettingsFile(cfg.SettingsPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Ignoring settings file %s: %v", cfg.SettingsPath(), err)
		}
		return cfg, nil
	}
	// explicit options still win over the saved file
	return NewFromEnv(append([]Option{WithRuntimeSettings(settings)}, opts...)...)
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	u, err := url.Parse(c.JSS.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("JSS_URL must be an absolute URL, got %q", c.JSS.URL)
	}
	if strings.TrimSpace(c.JSS.User) == "" {
		return fmt.Errorf("UPLOAD_USER is required")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("RETRY_ATTEMPTS must be positive")
	}
	if c.Retry.Delay < 0 || c.Stream.ReconnectDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.Stream.ResyncCron != "" {
		if _, err := cron.ParseStandard(c.Stream.ResyncCron); err != nil {
			return fmt.Errorf("invalid RESYNC_CRON: %w", err)
		}
	}
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fileupload"
	}
	return filepath.Join(home, ".fileupload")
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("10s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
