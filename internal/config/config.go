// package config loads application configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrMissingCredentials is returned when the telegram api credentials are absent.
// The service cannot talk to telegram without them, so startup fails.
var ErrMissingCredentials = errors.New("TELEGRAM_API_ID and TELEGRAM_API_HASH are required")

// Config holds all application configuration.
type Config struct {
	// telegram
	APIID   int
	APIHash string

	// media resolution, empty disables url resolution
	FileGatewayURL string

	// nats, empty disables completion events
	NatsURL string

	// server
	HTTPPort int

	// outbound callbacks
	CallbackTimeout time.Duration

	// auth sessions
	AuthSessionTTL time.Duration

	// telegram rate limiting
	TelegramRPS float64

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIID:           getEnvInt("TELEGRAM_API_ID", 0),
		APIHash:         getEnv("TELEGRAM_API_HASH", ""),
		FileGatewayURL:  getEnv("FILE_GATEWAY_URL", ""),
		NatsURL:         getEnv("NATS_URL", ""),
		HTTPPort:        getEnvInt("HTTP_PORT", 8000),
		CallbackTimeout: time.Duration(getEnvInt("CALLBACK_TIMEOUT_SECONDS", 30)) * time.Second,
		AuthSessionTTL:  time.Duration(getEnvInt("AUTH_SESSION_TTL_SECONDS", 300)) * time.Second,
		TelegramRPS:     getEnvFloat("TELEGRAM_RPS", 2.0),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
	}

	return cfg, nil
}

// Validate checks that required credentials are present.
func (c *Config) Validate() error {
	if c.APIID == 0 || c.APIHash == "" {
		return ErrMissingCredentials
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
