package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from env at startup.
type Config struct {
	Port          string
	BaseURL       string
	AppDBURL      string
	WADBURL       string
	JWTSecret     string
	CORSOrigins   string
	DeviceName    string
	DefaultPrefix string // default country code prepended to local numbers

	// Session lifecycle knobs (see internal/service).
	ReaperInterval time.Duration
	PairingTTL     time.Duration
	ConnectedTTL   time.Duration
	ActionTimeout  time.Duration
	BulkTimeout    time.Duration
	SyncBatchSize  int

	RateLimitPerSecond int
	RateLimitBurst     int
	RateLimitWindowMin int
}

func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "2121"),
		BaseURL:       getEnv("BASEURL", ""),
		AppDBURL:      getEnv("APP_DATABASE_URL", ""),
		WADBURL:       getEnv("DATABASE_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		CORSOrigins:   getEnv("CORS_ALLOW_ORIGINS", ""),
		DeviceName:    getEnv("SB_DEVICE_NAME", "SalesBridge"),
		DefaultPrefix: getEnv("SB_DEFAULT_COUNTRY_CODE", "62"),

		ReaperInterval: getEnvDuration("SB_REAPER_INTERVAL", 90*time.Second),
		PairingTTL:     getEnvDuration("SB_PAIRING_TTL", 5*time.Minute),
		ConnectedTTL:   getEnvDuration("SB_CONNECTED_TTL", 30*time.Minute),
		ActionTimeout:  getEnvDuration("SB_ACTION_TIMEOUT", 10*time.Second),
		BulkTimeout:    getEnvDuration("SB_BULK_TIMEOUT", 30*time.Second),
		SyncBatchSize:  getEnvInt("SB_SYNC_BATCH_SIZE", 100),

		RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		RateLimitWindowMin: getEnvInt("RATE_LIMIT_WINDOW_MINUTES", 3),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
