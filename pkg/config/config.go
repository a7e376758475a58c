package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSpdxURL is the SPDX license list used when none is configured
const DefaultSpdxURL = "https://raw.githubusercontent.com/spdx/license-list-data/main/json/licenses.json"

// Config holds all application configuration
type Config struct {
	// Home is the directory holding marketplace.yaml, submissions and caches
	Home string

	// KeysDir holds signing keys
	KeysDir string

	// Logging
	LogLevel string

	// Broker access
	FanoutTimeout time.Duration
	HTTPTimeout   time.Duration

	// License data
	SpdxURL string

	// Submission housekeeping
	SubmissionRetentionDays int
	CleanupSchedule         string

	// Metrics endpoint for long-running commands
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	home := getEnv("SKILLMEAT_HOME", "")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		home = filepath.Join(userHome, ".skillmeat")
	}

	cfg := &Config{
		Home:                    home,
		KeysDir:                 getEnv("SKILLMEAT_KEYS_DIR", filepath.Join(home, "keys")),
		LogLevel:                strings.ToLower(getEnv("SKILLMEAT_LOG_LEVEL", "info")),
		FanoutTimeout:           getEnvDuration("SKILLMEAT_FANOUT_TIMEOUT", 10*time.Second),
		HTTPTimeout:             getEnvDuration("SKILLMEAT_HTTP_TIMEOUT", 30*time.Second),
		SpdxURL:                 getEnv("SKILLMEAT_SPDX_URL", DefaultSpdxURL),
		SubmissionRetentionDays: getEnvInt("SKILLMEAT_SUBMISSION_RETENTION_DAYS", 90),
		CleanupSchedule:         getEnv("SKILLMEAT_CLEANUP_SCHEDULE", "30 3 * * *"),
		MetricsAddr:             getEnv("SKILLMEAT_METRICS_ADDR", ":9090"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Home == "" {
		return fmt.Errorf("home directory is required")
	}
	if c.FanoutTimeout <= 0 {
		return fmt.Errorf("fan-out timeout must be positive, got %s", c.FanoutTimeout)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.SubmissionRetentionDays <= 0 {
		return fmt.Errorf("submission retention must be positive, got %d days", c.SubmissionRetentionDays)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.CleanupSchedule, err)
	}
	return nil
}

// SubmissionsDir is where the submission table is stored
func (c *Config) SubmissionsDir() string {
	return c.Home
}

// CacheDir is where downloaded reference data is cached
func (c *Config) CacheDir() string {
	return filepath.Join(c.Home, "cache")
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
