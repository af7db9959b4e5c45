package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultBackendURL is used when no base URL is supplied externally. It points
// at the local development API gateway.
const DefaultBackendURL = "http://127.0.0.1:54321"

// Store drivers
const (
	DriverFile   = "file"
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverTiered = "tiered"
)

// BackendConfig holds the remote REST backend settings
type BackendConfig struct {
	BaseURL     string        `yaml:"base_url" env:"NIMBUS_BACKEND_URL"`
	APIKey      string        `yaml:"api_key" env:"NIMBUS_API_KEY"`
	Timeout     time.Duration `yaml:"timeout" env:"NIMBUS_BACKEND_TIMEOUT"`
	ReadRetries int           `yaml:"read_retries" env:"NIMBUS_BACKEND_READ_RETRIES"`
}

// StoreConfig holds local cache storage settings
type StoreConfig struct {
	Driver string `yaml:"driver" env:"NIMBUS_STORE_DRIVER"`
	Root   string `yaml:"root" env:"NIMBUS_STORE_ROOT"`
}

// RedisConfig holds Redis connection settings for the redis store driver
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"NIMBUS_REDIS_ADDR"`
	Password  string `yaml:"password" env:"NIMBUS_REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"NIMBUS_REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env:"NIMBUS_REDIS_PREFIX"`
}

// ProbeConfig holds connectivity probe settings
type ProbeConfig struct {
	URL     string        `yaml:"url" env:"NIMBUS_PROBE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"NIMBUS_PROBE_TIMEOUT"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"NIMBUS_HTTP_ADDR"`
}

// LoggingConfig controls the operational logger and the command log
type LoggingConfig struct {
	Format         string `yaml:"format" env:"NIMBUS_LOG_FORMAT"`
	Level          string `yaml:"level" env:"NIMBUS_LOG_LEVEL"`
	CommandLogFile string `yaml:"command_log_file" env:"NIMBUS_COMMAND_LOG"`
	CommandConsole bool   `yaml:"command_console"`
}

// MetricsConfig controls Prometheus metrics
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"NIMBUS_METRICS_ENABLED"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig controls OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" env:"NIMBUS_TRACING_ENABLED"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint" env:"NIMBUS_OTLP_ENDPOINT"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// ObservabilityConfig groups logging, metrics and tracing
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Store         StoreConfig         `yaml:"store"`
	Redis         RedisConfig         `yaml:"redis"`
	Probe         ProbeConfig         `yaml:"probe"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: DefaultBackendURL,
			APIKey:  "",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverFile,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "nimbus:offline:",
		},
		Probe: ProbeConfig{
			URL:     "https://www.google.com",
			Timeout: 5 * time.Second,
		},
		Daemon: DaemonConfig{
			HTTPAddr: "127.0.0.1:7420",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Format: "text",
				Level:  "info",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "nimbus",
			},
			Tracing: TracingConfig{
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "nimbus",
				SampleRate:  1.0,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML (or JSON) file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Backend variables exported by the desktop shell's web build. They apply
// only when the matching NIMBUS_* variable is empty.
const (
	ShellBackendURLEnv = "NEXT_PUBLIC_SUPABASE_URL"
	ShellAPIKeyEnv     = "NEXT_PUBLIC_SUPABASE_ANON_KEY"
)

// LoadFromEnv applies environment variable overrides to the config. Unset
// variables leave the current value untouched.
func LoadFromEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if os.Getenv("NIMBUS_BACKEND_URL") == "" {
		if v := os.Getenv(ShellBackendURLEnv); v != "" {
			cfg.Backend.BaseURL = v
		}
	}
	if os.Getenv("NIMBUS_API_KEY") == "" {
		if v := os.Getenv(ShellAPIKeyEnv); v != "" {
			cfg.Backend.APIKey = v
		}
	}
	return nil
}

// Validate reports settings that cannot be used as given.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverFile, DriverMemory, DriverRedis, DriverTiered:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch c.Observability.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Observability.Logging.Format)
	}
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend base URL is empty")
	}
	if c.Backend.ReadRetries < 0 {
		return fmt.Errorf("backend read retries must not be negative")
	}
	return nil
}

// ConfigurationError reports that a required path could not be resolved.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: resolve %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// userConfigDir is swapped in tests.
var userConfigDir = os.UserConfigDir

// StorageRoot returns the directory holding cached entries. An empty
// store.root resolves to <user config dir>/nimbus/offline_data.
func (c *Config) StorageRoot() (string, error) {
	if root := strings.TrimSpace(c.Store.Root); root != "" {
		return filepath.Clean(root), nil
	}
	base, err := userConfigDir()
	if err != nil {
		return "", &ConfigurationError{Setting: "store.root", Err: err}
	}
	return filepath.Join(base, "nimbus", "offline_data"), nil
}
