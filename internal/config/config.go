package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RecBaseURL       string
	OrganizationSlug string
	ScrapeInterval   time.Duration
	HTTPTimeout      time.Duration
	Timezone         string
	DBPath           string
	ServerPort       string
	LogLevel         string
	ScraperEnabled   bool
	TargetSportID    string

	SMTPEnabled     bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromAddress string
	SMTPUseTLS      bool
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RecBaseURL:       getEnv("REC_BASE_URL", "https://api.rec.us"),
		OrganizationSlug: getEnv("ORGANIZATION_SLUG", "san-francisco-rec-park"),
		ScrapeInterval:   time.Duration(getEnvInt("SCRAPE_INTERVAL_SECONDS", 300)) * time.Second,
		HTTPTimeout:      time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		Timezone:         getEnv("TIMEZONE", "America/Los_Angeles"),
		DBPath:           getEnv("DB_PATH", "courtwatch.db"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ScraperEnabled:   getEnvBool("SCRAPER_ENABLED", true),
		TargetSportID:    getEnv("PICKLEBALL_SPORT_ID", "bd745b6e-1dd6-43e2-a69f-06f094808a96"),

		SMTPEnabled:     getEnvBool("SMTP_ENABLED", false),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFromAddress: getEnv("SMTP_FROM_ADDRESS", "alerts@example.com"),
		SMTPUseTLS:      getEnvBool("SMTP_USE_TLS", true),
	}

	if cfg.OrganizationSlug == "" {
		return nil, fmt.Errorf("ORGANIZATION_SLUG is required")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	logger.Info().
		Str("rec_base_url", cfg.RecBaseURL).
		Str("organization_slug", cfg.OrganizationSlug).
		Dur("scrape_interval", cfg.ScrapeInterval).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("scraper_enabled", cfg.ScraperEnabled).
		Bool("smtp_enabled", cfg.SMTPEnabled).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
