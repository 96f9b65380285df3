// =============================================================================
// config.go - Client Configuration
// =============================================================================
//
// Configuration comes from three layers, each overriding the one before:
//
//   1. Defaults()                      built-in values
//   2. ~/.stompclient.yaml             optional YAML file
//   3. STOMP_* environment variables   parsed with caarlos0/env
//
// Command-line flags are applied on top in main.go.
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is looked up in the home directory.
const defaultConfigFile = ".stompclient.yaml"

// Config is the full client configuration.
type Config struct {
	// Broker is used by "login" when no address is given.
	Broker string `yaml:"broker" env:"STOMP_BROKER"`

	// DialTimeout bounds TCP/WebSocket connection establishment.
	DialTimeout time.Duration `yaml:"dial_timeout" env:"STOMP_DIAL_TIMEOUT"`

	// HistoryFile keeps command history between runs. Empty disables it.
	HistoryFile string `yaml:"history_file" env:"STOMP_HISTORY_FILE"`

	Logger  LoggerConfig  `yaml:"logger"`
	Report  ReportConfig  `yaml:"report"`
	Metrics MetricsConfig `yaml:"metrics"`
	Archive ArchiveConfig `yaml:"archive"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// LoggerConfig selects the diagnostic log sink.
type LoggerConfig struct {
	Level  string `yaml:"level" env:"STOMP_LOG_LEVEL"`
	Format string `yaml:"format" env:"STOMP_LOG_FORMAT"`
	Output string `yaml:"output" env:"STOMP_LOG_OUTPUT"`
}

// ReportConfig paces reported events. A zero rate disables pacing.
type ReportConfig struct {
	Rate  float64 `yaml:"rate" env:"STOMP_REPORT_RATE"`
	Burst int     `yaml:"burst" env:"STOMP_REPORT_BURST"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"STOMP_METRICS_ADDR"`
}

// ArchiveConfig enables the SQLite event archive when Path is set.
type ArchiveConfig struct {
	Path string `yaml:"path" env:"STOMP_ARCHIVE_PATH"`
}

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled" env:"STOMP_TRACE_ENABLED"`
	Exporter string `yaml:"exporter" env:"STOMP_TRACE_EXPORTER"`
}

// BreakerConfig configures the dial circuit breaker.
type BreakerConfig struct {
	Failures uint32        `yaml:"failures" env:"STOMP_BREAKER_FAILURES"`
	Timeout  time.Duration `yaml:"timeout" env:"STOMP_BREAKER_TIMEOUT"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DialTimeout: 5 * time.Second,
		HistoryFile: defaultHistoryPath(),
		Logger: LoggerConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Report: ReportConfig{Burst: 1},
		Tracer: TracerConfig{Exporter: "stdout"},
		Breaker: BreakerConfig{
			Failures: 3,
			Timeout:  30 * time.Second,
		},
	}
}

// defaultConfigPath returns ~/.stompclient.yaml, or "" without a home
// directory.
func defaultConfigPath() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, defaultConfigFile)
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// and the environment. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and reports every problem at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q must be debug, info, warn or error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
	if cfg.Report.Rate < 0 {
		ve.Add("report.rate must be >= 0")
	}
	if cfg.Report.Burst < 0 {
		ve.Add("report.burst must be >= 0")
	}
	if cfg.DialTimeout <= 0 {
		ve.Add("dial_timeout must be > 0")
	}
	if cfg.Breaker.Timeout < 0 {
		ve.Add("breaker.timeout must be >= 0")
	}
	if cfg.Tracer.Enabled {
		switch cfg.Tracer.Exporter {
		case "stdout", "noop", "":
		default:
			ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
