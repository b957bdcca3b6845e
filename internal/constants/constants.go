// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort            = "8080"
	DefaultDBPath          = "royaltyd.db"
	DefaultSystemCurrency  = "USD"
	DefaultFXURL           = "http://127.0.0.1:8100"
	DefaultGatewayURL      = "http://127.0.0.1:8200"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultRetryCount      = 3
	DefaultRetryBase       = 1 * time.Second
	DefaultRequestInterval = 100 * time.Millisecond
)

// Batch schedules (standard 5-field cron expressions)
const (
	DefaultAggregationSchedule = "0 2 * * *"
	DefaultAnalyticsSchedule   = "15 * * * *"
	DefaultKeyCleanupSchedule  = "30 3 * * *"
	DefaultRecoverySchedule    = "*/15 * * * *"
)

// Financial policy defaults
const (
	DefaultMinimumPayout      = "25.00"
	DefaultReversalCooldown   = 30 * 24 * time.Hour
	DefaultProcessingDeadline = 2 * time.Hour
)

// API key issuance
const (
	KeyPrefix       = "rk_"
	KeyByteLength   = 32
	MaxKeysPerUser  = 20
	MaxKeyNameChars = 128
)

// Analytics limits
const (
	MaxEventBatchSize = 1000
)

// Pagination
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)
