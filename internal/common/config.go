// Package common provides shared utilities for the pipeline runtime.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the pipeline runtime.
type Config struct {
	Environment string         `toml:"environment"`
	Storage     StorageConfig  `toml:"storage"`
	Queue       QueueConfig    `toml:"queue"`
	JobManager  JobManagerConfig `toml:"job_manager"`
	Growth      GrowthConfig   `toml:"growth"`
	Clients     ClientsConfig  `toml:"clients"`
	Logging     LoggingConfig  `toml:"logging"`
	Auth        AuthConfig     `toml:"auth"`
	Metrics     MetricsConfig  `toml:"metrics"`
	Redis       RedisConfig    `toml:"redis"`
}

// RedisConfig holds the optional Redis connection backing the growth
// engine's distributed publish lock. Addr empty disables it entirely: the
// publish handler falls back to its existing campaignId-scoped dedup.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// MetricsConfig holds the host/port the /metrics and /health HTTP endpoints
// bind to when `worker run` starts, plus where to ship traces.
type MetricsConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// OTLPEndpoint is an OTLP/HTTP collector address (host:port, no
	// scheme). Empty disables span export: the tracer still samples and
	// shapes spans, they are just never shipped anywhere.
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// StorageConfig holds the SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	User      string `toml:"user"`
	Pass      string `toml:"pass"`
	DataPath  string `toml:"data_path"`
}

// QueueConfig holds the durable job queue's operating parameters.
type QueueConfig struct {
	PollInterval string `toml:"poll_interval"` // default "5s"
	BatchSize    int    `toml:"batch_size"`    // default 5
	LeaseSeconds int    `toml:"lease_seconds"` // default 600 (10 min)
	MaxAttempts  int    `toml:"max_attempts"`  // default 3
	PurgeAfterDays int  `toml:"purge_after_days"` // default 30
}

// GetPollInterval parses and returns the queue poll interval, falling back
// to 5s on an invalid or missing value.
func (c *QueueConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetBatchSize returns the configured batch size, falling back to 5.
func (c *QueueConfig) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return 5
	}
	return c.BatchSize
}

// GetLeaseDuration returns the lock lease duration, falling back to 10 min.
func (c *QueueConfig) GetLeaseDuration() time.Duration {
	if c.LeaseSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.LeaseSeconds) * time.Second
}

// GetMaxAttempts returns the default max attempts, falling back to 3.
func (c *QueueConfig) GetMaxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

// GetPurgeAfter returns the terminal-job retention window, falling back to
// 30 days.
func (c *QueueConfig) GetPurgeAfter() time.Duration {
	if c.PurgeAfterDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.PurgeAfterDays) * 24 * time.Hour
}

// JobManagerConfig holds worker bootstrap/runtime tuning, in the
// parse-with-fallback style used throughout this package: an invalid or
// missing value never panics, it falls back to a documented default. The
// startup delay and heavy-job limit also read an environment variable at
// read time that wins over both; the watcher interval and max concurrency
// have no environment override.
type JobManagerConfig struct {
	Enabled              bool   `toml:"enabled"`
	WatcherStartupDelay  string `toml:"watcher_startup_delay"` // default "10s"
	WatcherInterval      string `toml:"watcher_interval"`      // default "15m"
	HeavyJobLimit        int    `toml:"heavy_job_limit"`       // default 1
	MaxConcurrent        int    `toml:"max_concurrent"`        // default 5
}

// GetWatcherStartupDelay parses WatcherStartupDelay, falling back to 10s on
// an invalid or missing value. VIRE_WATCHER_STARTUP_DELAY overrides both.
func (c *JobManagerConfig) GetWatcherStartupDelay() time.Duration {
	if v := os.Getenv("VIRE_WATCHER_STARTUP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	d, err := time.ParseDuration(c.WatcherStartupDelay)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetWatcherInterval parses WatcherInterval, falling back to 15 minutes.
func (c *JobManagerConfig) GetWatcherInterval() time.Duration {
	d, err := time.ParseDuration(c.WatcherInterval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetHeavyJobLimit returns the heavy-job concurrency limit, falling back to
// 1. VIRE_JOBS_HEAVY_LIMIT overrides both.
func (c *JobManagerConfig) GetHeavyJobLimit() int {
	if v := os.Getenv("VIRE_JOBS_HEAVY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if c.HeavyJobLimit <= 0 {
		return 1
	}
	return c.HeavyJobLimit
}

// GetMaxConcurrent returns the worker pool size, falling back to 5.
func (c *JobManagerConfig) GetMaxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return 5
	}
	return c.MaxConcurrent
}

// GrowthConfig holds the publish-engine's cap/cooldown/jitter defaults.
// Every field has an environment override, checked at read time, matching
// the env vars named in the external interfaces surface.
type GrowthConfig struct {
	CooldownHours           int `toml:"cooldown_hours"`            // default 24
	DefaultDailyCap         int `toml:"default_daily_cap"`         // default 2
	DefaultMinJitterMinutes int `toml:"default_min_jitter_minutes"` // default 15
	DefaultMaxJitterMinutes int `toml:"default_max_jitter_minutes"` // default 90
	DefaultQuietHoursStart  int `toml:"default_quiet_hours_start"`  // default 23
	DefaultQuietHoursEnd    int `toml:"default_quiet_hours_end"`    // default 6
	IntegrityAlertWindowHours int `toml:"integrity_alert_window_hours"` // default 24
	MediaReviewSweepUserLimit int `toml:"media_review_sweep_user_limit"` // default 100
}

// GetCooldown returns the duplicate/domain cooldown window, falling back to
// 24h and clamped to a minimum of 1h. GROWTH_CHANNEL_COOLDOWN_HOURS overrides.
func (c *GrowthConfig) GetCooldown() time.Duration {
	hours := c.CooldownHours
	if v := os.Getenv("GROWTH_CHANNEL_COOLDOWN_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			hours = n
		}
	}
	if hours < 1 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// GetDefaultDailyCap returns the campaign-wide default daily publish cap,
// falling back to 2 and clamped to a minimum of 1. GROWTH_DEFAULT_DAILY_CAP
// overrides.
func (c *GrowthConfig) GetDefaultDailyCap() int {
	cap := c.DefaultDailyCap
	if v := os.Getenv("GROWTH_DEFAULT_DAILY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cap = n
		}
	}
	if cap < 1 {
		cap = 2
	}
	return cap
}

// GetJitterBounds returns (min, max) jitter minutes, clamped to [0, 1440].
// GROWTH_DEFAULT_MIN_JITTER_MINUTES / MAX override.
func (c *GrowthConfig) GetJitterBounds() (int, int) {
	min, max := c.DefaultMinJitterMinutes, c.DefaultMaxJitterMinutes
	if v := os.Getenv("GROWTH_DEFAULT_MIN_JITTER_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			min = n
		}
	}
	if v := os.Getenv("GROWTH_DEFAULT_MAX_JITTER_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			max = n
		}
	}
	if min == 0 && max == 0 {
		min, max = 15, 90
	}
	min = clampInt(min, 0, 1440)
	max = clampInt(max, 0, 1440)
	if max < min {
		max = min
	}
	return min, max
}

// GetQuietHours returns (startHour, endHour) in UTC, clamped to [0, 23].
// GROWTH_DEFAULT_QUIET_HOURS_START / END override.
func (c *GrowthConfig) GetQuietHours() (int, int) {
	start, end := c.DefaultQuietHoursStart, c.DefaultQuietHoursEnd
	if v := os.Getenv("GROWTH_DEFAULT_QUIET_HOURS_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := os.Getenv("GROWTH_DEFAULT_QUIET_HOURS_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			end = n
		}
	}
	if start == 0 && end == 0 {
		start, end = 23, 6
	}
	return clampInt(start, 0, 23), clampInt(end, 0, 23)
}

// GetIntegrityAlertWindow returns the integrity-alert sampling window,
// falling back to 24h and clamped to a maximum of 336h (14 days).
// GROWTH_INTEGRITY_ALERT_WINDOW_HOURS overrides.
func (c *GrowthConfig) GetIntegrityAlertWindow() time.Duration {
	hours := c.IntegrityAlertWindowHours
	if v := os.Getenv("GROWTH_INTEGRITY_ALERT_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			hours = n
		}
	}
	if hours <= 0 {
		hours = 24
	}
	if hours > 336 {
		hours = 336
	}
	return time.Duration(hours) * time.Hour
}

// GetMediaReviewSweepUserLimit returns the per-sweep user cap for the media
// review escalation maintenance job, falling back to 100 and clamped to a
// maximum of 500. MEDIA_REVIEW_ESCALATION_SWEEP_USER_LIMIT overrides.
func (c *GrowthConfig) GetMediaReviewSweepUserLimit() int {
	limit := c.MediaReviewSweepUserLimit
	if v := os.Getenv("MEDIA_REVIEW_ESCALATION_SWEEP_USER_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClientsConfig holds outbound API client configurations.
type ClientsConfig struct {
	Gemini GeminiConfig `toml:"gemini"`
}

// GeminiConfig holds Gemini API configuration, the reference AIClient
// implementation.
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxURLs        int    `toml:"max_urls"`
	MaxContentSize string `toml:"max_content_size"`
	RateLimitRPS   int    `toml:"rate_limit_rps"`
	Timeout        string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration, falling back to 30s.
func (c *GeminiConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AuthConfig holds credential-signing configuration.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"` // duration string, default "24h"
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "pipeline",
			Database:  "pipeline",
			User:      "root",
			Pass:      "root",
			DataPath:  "data",
		},
		Queue: QueueConfig{
			PollInterval:   "5s",
			BatchSize:      5,
			LeaseSeconds:   600,
			MaxAttempts:    3,
			PurgeAfterDays: 30,
		},
		JobManager: JobManagerConfig{
			Enabled:             true,
			WatcherStartupDelay: "10s",
			WatcherInterval:     "15m",
			HeavyJobLimit:       1,
			MaxConcurrent:       5,
		},
		Growth: GrowthConfig{
			CooldownHours:             24,
			DefaultDailyCap:           2,
			DefaultMinJitterMinutes:   15,
			DefaultMaxJitterMinutes:   90,
			DefaultQuietHoursStart:    23,
			DefaultQuietHoursEnd:      6,
			IntegrityAlertWindowHours: 24,
			MediaReviewSweepUserLimit: 100,
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model:          "gemini-3-flash-preview",
				MaxURLs:        20,
				MaxContentSize: "34MB",
				RateLimitRPS:   5,
				Timeout:        "30s",
			},
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Metrics: MetricsConfig{
			Host: "0.0.0.0",
			Port: 9090,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/pipeline.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_ENV"); env != "" {
		config.Environment = env
	}
	if level := os.Getenv("VIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("VIRE_DATA_PATH"); path != "" {
		config.Storage.DataPath = filepath.Join(path)
	}
	if v := os.Getenv("VIRE_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("VIRE_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("VIRE_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}
	if v := os.Getenv("VIRE_WATCHER_STARTUP_DELAY"); v != "" {
		config.JobManager.WatcherStartupDelay = v
	}
	if v := os.Getenv("VIRE_JOBS_HEAVY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.JobManager.HeavyJobLimit = n
		}
	}
	if v := os.Getenv("VIRE_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Metrics.Port = n
		}
	}
	if v := os.Getenv("VIRE_OTLP_ENDPOINT"); v != "" {
		config.Metrics.OTLPEndpoint = v
	}
	if v := os.Getenv("VIRE_REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("VIRE_REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of required fields that are missing,
// empty when the config is fit to start the worker runtime.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Storage.Address == "" {
		missing = append(missing, "storage.address")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "dev-jwt-secret-change-in-production" {
		missing = append(missing, "auth.jwt_secret (must not use the development default in production)")
	}
	return missing
}
