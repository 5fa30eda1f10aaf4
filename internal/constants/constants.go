package constants

import "time"

const (
	// MinScrapeInterval is the floor for the sync loop regardless of config.
	MinScrapeInterval = 15 * time.Second

	DefaultDurationMinutes = 60
)

const (
	ExternalAPITimeout = 30 * time.Second
	DatabaseTimeout    = 5 * time.Second
	CycleTimeout       = 2 * time.Minute
	NotifyTimeout      = 30 * time.Second
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultAlertLimit = 25
	MaxAlertLimit     = 100
)

const (
	// FetchRateLimit caps outbound Rec API requests per second.
	FetchRateLimit = 1.0
	FetchRateBurst = 2
)
