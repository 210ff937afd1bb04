package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	YouTubeAPIKey string

	AuthSecret     string
	AdminPassword  string
	ClientPassword string

	DefaultPollInterval time.Duration
	HistoryWindow       time.Duration // default backfill window for subscribers
	MaxHistoryWindow    time.Duration // hard cap on any history query
	SeedOnStart         bool

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Best-effort: a missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "4000"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		YouTubeAPIKey:  getEnv("YT_API_KEY", ""),
		AuthSecret:     getEnv("AUTH_SECRET", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		ClientPassword: getEnv("CLIENT_PASSWORD", ""),
		SeedOnStart:    getEnv("SEED_ON_START", "") == "true",
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.YouTubeAPIKey == "" {
		return nil, fmt.Errorf("YT_API_KEY is required")
	}
	if cfg.AuthSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required")
	}
	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required")
	}

	pollSec, err := getEnvInt("POLL_INTERVAL_DEFAULT", 5)
	if err != nil {
		return nil, err
	}
	cfg.DefaultPollInterval = time.Duration(pollSec) * time.Second
	if cfg.DefaultPollInterval < domain.MinPollInterval || cfg.DefaultPollInterval > domain.MaxPollInterval {
		return nil, fmt.Errorf("POLL_INTERVAL_DEFAULT must be between %d and %d seconds",
			int(domain.MinPollInterval.Seconds()), int(domain.MaxPollInterval.Seconds()))
	}

	historyMin, err := getEnvInt("HISTORY_WINDOW_DEFAULT", 60)
	if err != nil {
		return nil, err
	}
	maxHistoryMin, err := getEnvInt("MAX_HISTORY_MINUTES", 10080)
	if err != nil {
		return nil, err
	}
	if historyMin <= 0 || maxHistoryMin <= 0 {
		return nil, fmt.Errorf("history windows must be positive")
	}
	if historyMin > maxHistoryMin {
		historyMin = maxHistoryMin
	}
	cfg.HistoryWindow = time.Duration(historyMin) * time.Minute
	cfg.MaxHistoryWindow = time.Duration(maxHistoryMin) * time.Minute

	if raw := getEnv("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}
