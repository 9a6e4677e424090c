// Package config manages application configuration
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Remote service
	APIBaseURL     string
	RequestTimeout time.Duration

	// Durable client storage
	StorePath string

	// Environment: "development" or "production"
	Environment string

	// Reporting
	TopN          int
	DailyFineRate string // decimal string, e.g. "0.50"
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIBaseURL:     getEnv("LIBRAN_API_URL", "http://localhost:8000"),
		RequestTimeout: getDurationEnv("LIBRAN_REQUEST_TIMEOUT", 15*time.Second),
		StorePath:      getEnv("LIBRAN_STORE_PATH", "libran.db"),
		Environment:    getEnv("LIBRAN_ENV", "development"),
		TopN:           getIntEnv("LIBRAN_REPORT_TOP_N", 10),
		DailyFineRate:  getEnv("LIBRAN_DAILY_FINE_RATE", "0.50"),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
