package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port               string
	DBPath             string
	SystemCurrency     string
	FXURL              string
	GatewayURL         string
	LogLevel           string
	LogFormat          string
	MinimumPayout      string
	ReversalCooldown   time.Duration
	ProcessingDeadline time.Duration

	AggregationSchedule string
	AnalyticsSchedule   string
	KeyCleanupSchedule  string
	RecoverySchedule    string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", constants.DefaultPort),
		DBPath:             getEnv("DB_PATH", constants.DefaultDBPath),
		SystemCurrency:     getEnv("SYSTEM_CURRENCY", constants.DefaultSystemCurrency),
		FXURL:              getEnv("FX_URL", constants.DefaultFXURL),
		GatewayURL:         getEnv("GATEWAY_URL", constants.DefaultGatewayURL),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		MinimumPayout:      getEnv("MINIMUM_PAYOUT", constants.DefaultMinimumPayout),
		ReversalCooldown:   getEnvDuration("REVERSAL_COOLDOWN", constants.DefaultReversalCooldown),
		ProcessingDeadline: getEnvDuration("PROCESSING_DEADLINE", constants.DefaultProcessingDeadline),

		AggregationSchedule: getEnv("AGGREGATION_SCHEDULE", constants.DefaultAggregationSchedule),
		AnalyticsSchedule:   getEnv("ANALYTICS_SCHEDULE", constants.DefaultAnalyticsSchedule),
		KeyCleanupSchedule:  getEnv("KEY_CLEANUP_SCHEDULE", constants.DefaultKeyCleanupSchedule),
		RecoverySchedule:    getEnv("RECOVERY_SCHEDULE", constants.DefaultRecoverySchedule),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	// Validate Port
	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	// Validate DBPath
	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	// Validate SystemCurrency
	if len(c.SystemCurrency) != 3 || c.SystemCurrency != strings.ToUpper(c.SystemCurrency) {
		errors = append(errors, fmt.Sprintf("SYSTEM_CURRENCY must be a 3-letter ISO code, got: %s", c.SystemCurrency))
	}

	// Validate FXURL
	if c.FXURL == "" {
		errors = append(errors, "FX_URL cannot be empty")
	} else if _, err := url.Parse(c.FXURL); err != nil {
		errors = append(errors, fmt.Sprintf("FX_URL is not a valid URL: %s", c.FXURL))
	}

	// Validate GatewayURL
	if c.GatewayURL == "" {
		errors = append(errors, "GATEWAY_URL cannot be empty")
	} else if _, err := url.Parse(c.GatewayURL); err != nil {
		errors = append(errors, fmt.Sprintf("GATEWAY_URL is not a valid URL: %s", c.GatewayURL))
	}

	// Validate LogLevel
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	// Validate LogFormat
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	// Validate MinimumPayout
	if min, err := decimal.NewFromString(c.MinimumPayout); err != nil {
		errors = append(errors, fmt.Sprintf("MINIMUM_PAYOUT must be a decimal amount, got: %s", c.MinimumPayout))
	} else if min.IsNegative() {
		errors = append(errors, fmt.Sprintf("MINIMUM_PAYOUT cannot be negative, got: %s", c.MinimumPayout))
	}

	if c.ReversalCooldown < 0 {
		errors = append(errors, "REVERSAL_COOLDOWN cannot be negative")
	}
	if c.ProcessingDeadline <= 0 {
		errors = append(errors, "PROCESSING_DEADLINE must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// AnalyticsRebuildWindow is the date range the scheduled analytics rebuild
// recomputes: the last two UTC days, so late events near midnight are
// folded into the right summary.
func (c *Config) AnalyticsRebuildWindow() (since, until time.Time) {
	until = time.Now().UTC()
	since = until.Add(-48 * time.Hour)
	return since, until
}

// MinimumPayoutAmount returns the platform-wide default minimum payout.
// Callers must Validate first; an unparseable value falls back to zero.
func (c *Config) MinimumPayoutAmount() decimal.Decimal {
	min, err := decimal.NewFromString(c.MinimumPayout)
	if err != nil {
		return decimal.Zero
	}
	return min
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable with a fallback default
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
