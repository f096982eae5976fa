// Package config loads process configuration from the environment.
// Storage backend settings live in the settings table, not here; this
// package only covers what the process needs before it can reach the
// database.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultMaxUploadSize caps a single upload at 50 MiB.
const DefaultMaxUploadSize = 50 << 20

type Config struct {
	ListenAddr  string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	DatabaseURL string

	JWTSecret     string
	AdminUsername string
	AdminPassword string

	// MaxUploadSize caps request bodies on the upload endpoints, in bytes.
	MaxUploadSize int64

	// BaseURL, when set, is used instead of the request host when building
	// absolute image URLs. Useful behind a reverse proxy.
	BaseURL string
}

// Load reads configuration from environment variables. It fails when a
// required value is missing rather than limping along with a guess.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:   envOr("METRICS_ADDR", ":9090"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminUsername: envOr("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		MaxUploadSize: DefaultMaxUploadSize,
		BaseURL:       os.Getenv("BASE_URL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required")
	}

	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE %q", v)
		}
		cfg.MaxUploadSize = n
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
