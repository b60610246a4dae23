// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Site      SiteConfig      `yaml:"site"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Geo       GeoConfig       `yaml:"geo"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the analytics store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// SiteConfig describes the tracked site.
type SiteConfig struct {
	Host string `yaml:"host"` // Own hostname; referrers matching it are dropped
}

// RateLimitConfig configures the per-IP ingestion guard.
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Limit           int           `yaml:"limit"` // Requests per window
	WindowSecs      int           `yaml:"window_secs"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// GeoConfig configures the optional IP geolocation lookup.
type GeoConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AnalyticsConfig configures query strategy selection.
type AnalyticsConfig struct {
	ExactMaxDays    int `yaml:"exact_max_days"`    // Longest range served from row-level data
	MinExactRecords int `yaml:"min_exact_records"` // Record ceilings below this force aggregation
	MaxRecords      int `yaml:"max_records"`       // Default expected-record ceiling
}

// RecorderConfig configures event buffering.
// Use "buffered" for production or "sync" for tests and one-shot tools.
type RecorderConfig struct {
	Mode          string        `yaml:"mode"` // "buffered" or "sync"
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RetentionConfig configures data retention.
type RetentionConfig struct {
	Days     int    `yaml:"days"`
	Schedule string `yaml:"schedule"` // Cron expression; empty disables the scheduled sweep
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Custom path (default: /metrics)
}

// Window returns the rate limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables,
// for deployments where no config file is mounted.
//
// Environment variables:
//
//	SITEPULSE_SERVER_HOST        - Server host (default: 0.0.0.0)
//	SITEPULSE_SERVER_PORT        - Server port (default: 8080)
//	SITEPULSE_DATABASE_DRIVER    - Store driver: sqlite or memory (default: sqlite)
//	SITEPULSE_DATABASE_DSN       - Database path (default: sitepulse.db)
//	SITEPULSE_SITE_HOST          - Own hostname for referrer filtering
//	SITEPULSE_RATELIMIT_ENABLED  - Enable the ingestion guard (default: true)
//	SITEPULSE_RATELIMIT_LIMIT    - Requests per window (default: 100)
//	SITEPULSE_RATELIMIT_WINDOW   - Window seconds (default: 60)
//	SITEPULSE_GEO_ENABLED        - Enable IP geolocation (default: false)
//	SITEPULSE_GEO_BASE_URL       - Geolocation service base URL
//	SITEPULSE_RETENTION_DAYS     - Retention period (default: 365)
//	SITEPULSE_RETENTION_SCHEDULE - Cron expression for scheduled sweeps
//	SITEPULSE_LOG_LEVEL          - Log level (default: info)
//	SITEPULSE_LOG_FORMAT         - json or console (default: json)
//	SITEPULSE_METRICS_ENABLED    - Enable /metrics (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies SITEPULSE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("SITEPULSE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SITEPULSE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SITEPULSE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SITEPULSE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("SITEPULSE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SITEPULSE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Site configuration
	if v := os.Getenv("SITEPULSE_SITE_HOST"); v != "" {
		cfg.Site.Host = v
	}

	// Rate limit configuration
	if v := os.Getenv("SITEPULSE_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("SITEPULSE_RATELIMIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("SITEPULSE_RATELIMIT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WindowSecs = n
		}
	}

	// Geo configuration
	if v := os.Getenv("SITEPULSE_GEO_ENABLED"); v != "" {
		cfg.Geo.Enabled = parseBool(v)
	}
	if v := os.Getenv("SITEPULSE_GEO_BASE_URL"); v != "" {
		cfg.Geo.BaseURL = v
	}
	if v := os.Getenv("SITEPULSE_GEO_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Geo.Timeout = d
		}
	}

	// Analytics configuration
	if v := os.Getenv("SITEPULSE_ANALYTICS_EXACT_MAX_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.ExactMaxDays = n
		}
	}
	if v := os.Getenv("SITEPULSE_ANALYTICS_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.MaxRecords = n
		}
	}

	// Recorder configuration
	if v := os.Getenv("SITEPULSE_RECORDER_MODE"); v != "" {
		cfg.Recorder.Mode = v
	}
	if v := os.Getenv("SITEPULSE_RECORDER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recorder.BatchSize = n
		}
	}

	// Retention configuration
	if v := os.Getenv("SITEPULSE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention.Days = n
		}
	}
	if v := os.Getenv("SITEPULSE_RETENTION_SCHEDULE"); v != "" {
		cfg.Retention.Schedule = v
	}

	// Logging configuration
	if v := os.Getenv("SITEPULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SITEPULSE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("SITEPULSE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("SITEPULSE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "sitepulse.db"
	}

	if !cfg.RateLimit.Enabled && cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Enabled = true
	}
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 100
	}
	if cfg.RateLimit.WindowSecs == 0 {
		cfg.RateLimit.WindowSecs = 60
	}
	if cfg.RateLimit.CleanupInterval == 0 {
		cfg.RateLimit.CleanupInterval = 5 * time.Minute
	}

	if cfg.Geo.BaseURL == "" {
		cfg.Geo.BaseURL = "http://ip-api.com/json"
	}
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = 3 * time.Second
	}

	if cfg.Analytics.ExactMaxDays == 0 {
		cfg.Analytics.ExactMaxDays = 90
	}
	if cfg.Analytics.MinExactRecords == 0 {
		cfg.Analytics.MinExactRecords = 1000
	}
	if cfg.Analytics.MaxRecords == 0 {
		cfg.Analytics.MaxRecords = 10000
	}

	if cfg.Recorder.Mode == "" {
		cfg.Recorder.Mode = "buffered"
	}
	if cfg.Recorder.BatchSize == 0 {
		cfg.Recorder.BatchSize = 100
	}
	if cfg.Recorder.FlushInterval == 0 {
		cfg.Recorder.FlushInterval = 5 * time.Second
	}

	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 365
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	if cfg.RateLimit.Limit < 1 {
		return fmt.Errorf("rate_limit.limit must be positive, got %d", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.WindowSecs < 1 {
		return fmt.Errorf("rate_limit.window_secs must be positive, got %d", cfg.RateLimit.WindowSecs)
	}

	if cfg.Geo.Enabled && cfg.Geo.BaseURL == "" {
		return fmt.Errorf("geo.base_url is required when geo.enabled is true")
	}

	validRecorderModes := map[string]bool{"buffered": true, "sync": true}
	if !validRecorderModes[cfg.Recorder.Mode] {
		return fmt.Errorf("recorder.mode must be 'buffered' or 'sync', got %q", cfg.Recorder.Mode)
	}

	if cfg.Retention.Days < 30 || cfg.Retention.Days > 1095 {
		return fmt.Errorf("retention.days must be between 30 and 1095, got %d", cfg.Retention.Days)
	}

	return nil
}
