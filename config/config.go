// Package config loads the server configuration from the environment, with
// an optional .env file for development convenience. Priority: real
// environment variables, then .env, then defaults.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server settings. Timeout-style settings are integer
// seconds on the wire to stay shell-friendly; use the accessor methods for
// durations.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8000"`

	// Session lifecycle
	CleanupIntervalSeconds int `env:"CLEANUP_INTERVAL_SECONDS" envDefault:"60"`
	InactiveTimeoutSeconds int `env:"INACTIVE_GAME_TIMEOUT_SECONDS" envDefault:"600"`
	ActiveTimeoutSeconds   int `env:"ACTIVE_GAME_TIMEOUT_SECONDS" envDefault:"86400"`

	// HTTP surface
	RateLimitGamesPerMinute int      `env:"RATE_LIMIT_GAMES_PER_MINUTE" envDefault:"10"`
	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Observability
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads the .env file if present, parses the environment and validates
// the result.
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Debug().Msg("loaded .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ADDR must not be empty")
	}
	if c.CleanupIntervalSeconds < 1 {
		return fmt.Errorf("CLEANUP_INTERVAL_SECONDS must be >= 1, got %d", c.CleanupIntervalSeconds)
	}
	if c.InactiveTimeoutSeconds < 1 {
		return fmt.Errorf("INACTIVE_GAME_TIMEOUT_SECONDS must be >= 1, got %d", c.InactiveTimeoutSeconds)
	}
	if c.ActiveTimeoutSeconds < 0 {
		return fmt.Errorf("ACTIVE_GAME_TIMEOUT_SECONDS must be >= 0 (0 disables), got %d", c.ActiveTimeoutSeconds)
	}
	if c.RateLimitGamesPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_GAMES_PER_MINUTE must be >= 1, got %d", c.RateLimitGamesPerMinute)
	}
	if c.MetricsInterval < time.Second {
		return fmt.Errorf("METRICS_INTERVAL must be >= 1s, got %s", c.MetricsInterval)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// CleanupInterval returns the reaper tick period.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// InactiveTimeout returns how long an empty session survives.
func (c *Config) InactiveTimeout() time.Duration {
	return time.Duration(c.InactiveTimeoutSeconds) * time.Second
}

// ActiveTimeout returns the hard session age cap, 0 meaning disabled.
func (c *Config) ActiveTimeout() time.Duration {
	return time.Duration(c.ActiveTimeoutSeconds) * time.Second
}
