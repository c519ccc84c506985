package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Unmarshall API configuration
	UnmarshallAPIURL string
	UnmarshallAPIKey string
	HTTPTimeout      time.Duration
	RateLimitRPS     float64

	LogLevel string

	// Database configuration (required only by components that persist)
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Metrics listener for the worker
	MetricsAddr string

	// Sync configuration
	SyncDepth    int
	SyncPageSize int
	SyncInterval time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// A .env file in the working directory is loaded first if present; variables already
// set in the environment take precedence.
func Load() (*Config, error) {
	LoadDotEnv(".env")

	cfg := &Config{}
	var errs []error

	// Unmarshall API configuration
	cfg.UnmarshallAPIURL = os.Getenv("UNMARSHALL_API_URL")
	if cfg.UnmarshallAPIURL == "" {
		errs = append(errs, fmt.Errorf("UNMARSHALL_API_URL is required"))
	}

	cfg.UnmarshallAPIKey = os.Getenv("UNMARSHALL_API_KEY")
	if cfg.UnmarshallAPIKey == "" {
		errs = append(errs, fmt.Errorf("UNMARSHALL_API_KEY is required"))
	}

	timeout, err := parseDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPTimeout = timeout
	}

	rps, err := parseFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RateLimitRPS = rps
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "unmarshall-wallet-sync")

	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	// Sync configuration
	depth, err := parseInt("SYNC_DEPTH", 4)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncDepth = depth
	}

	pageSize, err := parseInt("SYNC_PAGE_SIZE", 25)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncPageSize = pageSize
	}

	interval, err := parseDuration("SYNC_INTERVAL", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncInterval = interval
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.UnmarshallAPIURL == "" {
		errs = append(errs, fmt.Errorf("UnmarshallAPIURL is required"))
	}

	if c.UnmarshallAPIKey == "" {
		errs = append(errs, fmt.Errorf("UnmarshallAPIKey is required"))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTPTimeout must be positive"))
	}

	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RateLimitRPS cannot be negative"))
	}

	if c.SyncDepth < 1 {
		errs = append(errs, fmt.Errorf("SyncDepth must be at least 1"))
	}

	if c.SyncPageSize < 1 {
		errs = append(errs, fmt.Errorf("SyncPageSize must be at least 1"))
	}

	if c.SyncInterval < time.Minute {
		errs = append(errs, fmt.Errorf("SyncInterval must be at least 1 minute"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RequireDatabase reports an error when no DATABASE_URL was configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// LoadDotEnv loads path into the environment if it exists. Variables that are
// already set are left alone.
func LoadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load .env file", "file", path, "error", err)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
