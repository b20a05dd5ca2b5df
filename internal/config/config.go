package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the inapp-report service.
type Config struct {
	Server      ServerConfig
	Source      SourceConfig
	Cache       CacheConfig
	Preferences PreferencesConfig
	Filter      FilterConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// SourceConfig points at the upstream hourly report.
type SourceConfig struct {
	URL     string
	Timeout time.Duration

	// RefreshInterval reloads the report in the background; 0 disables.
	RefreshInterval time.Duration
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type CacheConfig struct {
	Backend string
	Key     string
	TTL     time.Duration
}

// Preference backends.
const (
	PrefsMemory   = "memory"
	PrefsRedis    = "redis"
	PrefsPostgres = "postgres"
)

type PreferencesConfig struct {
	Backend string
}

// FilterConfig tunes day extraction and date validation.
type FilterConfig struct {
	// DayOffsetDays moves every record's business day; 0 keeps the day
	// as written upstream.
	DayOffsetDays     int
	RejectFutureDates bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RateLimitConfig splits traffic into light reads and heavy calls
// (export, refresh).
type RateLimitConfig struct {
	Enabled    bool
	RPS        float64
	Burst      int
	HeavyRPS   float64
	HeavyBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("INAPP_REPORT_HTTP_ADDR", ":8080"),
			Env:             getEnv("INAPP_REPORT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("INAPP_REPORT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Source: SourceConfig{
			URL:     getEnv("INAPP_REPORT_SOURCE_URL", ""),
			Timeout: getDurationEnv("INAPP_REPORT_SOURCE_TIMEOUT", 30*time.Second),

			RefreshInterval: getDurationEnv("INAPP_REPORT_REFRESH_INTERVAL", 12*time.Hour),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("INAPP_REPORT_CACHE_BACKEND", CacheMemory)),
			Key:     getEnv("INAPP_REPORT_CACHE_KEY", "hourlyReport"),
			TTL:     getDurationEnv("INAPP_REPORT_CACHE_TTL", 12*time.Hour),
		},
		Preferences: PreferencesConfig{
			Backend: strings.ToLower(getEnv("INAPP_REPORT_PREFS_BACKEND", PrefsMemory)),
		},
		Filter: FilterConfig{
			DayOffsetDays:     getIntEnv("INAPP_REPORT_DAY_OFFSET_DAYS", 0),
			RejectFutureDates: getBoolEnv("INAPP_REPORT_REJECT_FUTURE_DATES", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("INAPP_REPORT_DB_HOST", "localhost"),
			Port:     getIntEnv("INAPP_REPORT_DB_PORT", 5432),
			User:     getEnv("INAPP_REPORT_DB_USER", "inapp"),
			Password: getEnv("INAPP_REPORT_DB_PASSWORD", "inapp_secret"),
			DBName:   getEnv("INAPP_REPORT_DB_NAME", "inapp_report"),
			SSLMode:  getEnv("INAPP_REPORT_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("INAPP_REPORT_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("INAPP_REPORT_DB_MIN_CONNS", 1),
		},
		Redis: RedisConfig{
			Addr:     getEnv("INAPP_REPORT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("INAPP_REPORT_REDIS_PASSWORD", ""),
			DB:       getIntEnv("INAPP_REPORT_REDIS_DB", 0),
			Prefix:   getEnv("INAPP_REPORT_REDIS_PREFIX", "inapp-report"),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getBoolEnv("INAPP_REPORT_RATE_LIMIT_ENABLED", true),
			RPS:        getFloatEnv("INAPP_REPORT_RATE_LIMIT_RPS", 50),
			Burst:      getIntEnv("INAPP_REPORT_RATE_LIMIT_BURST", 100),
			HeavyRPS:   getFloatEnv("INAPP_REPORT_RATE_LIMIT_HEAVY_RPS", 1),
			HeavyBurst: getIntEnv("INAPP_REPORT_RATE_LIMIT_HEAVY_BURST", 5),
		},
		Log: LogConfig{
			Level:  getEnv("INAPP_REPORT_LOG_LEVEL", "info"),
			Format: getEnv("INAPP_REPORT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("INAPP_REPORT_METRICS_ENABLED", true),
			Path:    getEnv("INAPP_REPORT_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("INAPP_REPORT_SOURCE_URL is required")
	}
	if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("INAPP_REPORT_SOURCE_URL %q is not an absolute URL", c.Source.URL)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("INAPP_REPORT_CACHE_BACKEND must be memory, redis or none, got %q", c.Cache.Backend)
	}
	switch c.Preferences.Backend {
	case PrefsMemory, PrefsRedis, PrefsPostgres:
	default:
		return fmt.Errorf("INAPP_REPORT_PREFS_BACKEND must be memory, redis or postgres, got %q", c.Preferences.Backend)
	}
	if c.Source.RefreshInterval < 0 {
		return fmt.Errorf("INAPP_REPORT_REFRESH_INTERVAL must not be negative")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("INAPP_REPORT_CACHE_TTL must be positive")
	}
	return nil
}

// NeedsRedis reports whether any backend is configured on Redis.
func (c *Config) NeedsRedis() bool {
	return c.Cache.Backend == CacheRedis || c.Preferences.Backend == PrefsRedis
}

// NeedsPostgres reports whether any backend is configured on Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.Preferences.Backend == PrefsPostgres
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
