package config

import (
	"os"
	"strconv"
)

// Config holds node configuration.
type Config struct {
	DatabaseURL string
	// RateLimitDatabaseURL points shared rate-limit counters at a Postgres
	// instance. Empty means counters live in the node's own database.
	RateLimitDatabaseURL string
	RedisAddr            string
	LogLevel             string
	BatchThreshold       int
	OTLPEndpoint         string
	PolicyProfilePath    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to a local sqlite file
		dbURL = "file:chronicler.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	batchThreshold := 100
	if raw := os.Getenv("BATCH_THRESHOLD"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchThreshold = n
		}
	}

	return &Config{
		DatabaseURL:          dbURL,
		RateLimitDatabaseURL: os.Getenv("RATE_LIMIT_DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		LogLevel:             logLevel,
		BatchThreshold:       batchThreshold,
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
		PolicyProfilePath:    os.Getenv("POLICY_PROFILE_PATH"),
	}
}
