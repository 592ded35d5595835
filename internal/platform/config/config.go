// Package config loads application configuration from environment variables.
// All variables use the CHOCO_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Content  ContentConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL runs the
// server on the in-memory store (useful for local development and demos).
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. An empty URL disables the
// cache-backed token store and knowledge-map cache.
type CacheConfig struct {
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	TokenTTL int // hours

	// Optional bootstrap admin account, created at startup when absent.
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// ContentConfig holds seed content settings.
type ContentConfig struct {
	PacksDir string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with CHOCO_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CHOCO_SERVER_PORT", 8080),
			Host: envStr("CHOCO_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("CHOCO_DATABASE_URL", ""),
			MaxConns: envInt("CHOCO_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("CHOCO_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("CHOCO_CACHE_URL", ""),
		},
		Auth: AuthConfig{
			TokenTTL:      envInt("CHOCO_AUTH_TOKEN_TTL", 24),
			AdminUsername: envStr("CHOCO_AUTH_ADMIN_USERNAME", ""),
			AdminEmail:    envStr("CHOCO_AUTH_ADMIN_EMAIL", ""),
			AdminPassword: envStr("CHOCO_AUTH_ADMIN_PASSWORD", ""),
		},
		Content: ContentConfig{
			PacksDir: envStr("CHOCO_CONTENT_PACKS_DIR", "./content/packs"),
		},
		Log: LogConfig{
			Level:  envStr("CHOCO_LOG_LEVEL", "info"),
			Format: envStr("CHOCO_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("CHOCO_SERVER_PORT must be a valid port, got %d", c.Server.Port)
	}
	if c.Auth.TokenTTL < 1 {
		return fmt.Errorf("CHOCO_AUTH_TOKEN_TTL must be at least 1 hour, got %d", c.Auth.TokenTTL)
	}
	if c.Auth.AdminUsername != "" && c.Auth.AdminPassword == "" {
		return fmt.Errorf("CHOCO_AUTH_ADMIN_PASSWORD is required when a bootstrap admin is configured")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("CHOCO_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
