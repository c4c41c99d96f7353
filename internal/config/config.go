package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL     string
	WSURL          string
	Token          string
	RequestTimeout time.Duration
	PendingTimeout time.Duration
	TypingTTL      time.Duration
	SnapshotFile   string
}

func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	pendingTimeout, err := time.ParseDuration(getEnv("PENDING_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_TIMEOUT: %w", err)
	}
	typingTTL, err := time.ParseDuration(getEnv("TYPING_TTL", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TYPING_TTL: %w", err)
	}

	cfg := &Config{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		WSURL:          getEnv("WS_URL", "ws://localhost:8080/ws"),
		Token:          os.Getenv("API_TOKEN"),
		RequestTimeout: requestTimeout,
		PendingTimeout: pendingTimeout,
		TypingTTL:      typingTTL,
		SnapshotFile:   os.Getenv("SNAPSHOT_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.WSURL == "" {
		return fmt.Errorf("WS_URL is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be greater than 0")
	}
	if c.PendingTimeout <= 0 {
		return fmt.Errorf("PENDING_TIMEOUT must be greater than 0")
	}
	if c.TypingTTL <= 0 {
		return fmt.Errorf("TYPING_TTL must be greater than 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
