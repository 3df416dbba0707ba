// Package config loads reqsync defaults from the environment.
//
// Command-line flags override every value loaded here.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds environment-derived defaults for the reqsync CLI.
type Config struct {
	Format        string        `env:"REQSYNC_FORMAT" envDefault:"text"`
	LayoutDir     string        `env:"REQSYNC_LAYOUT_DIR"`
	RelayInterval time.Duration `env:"REQSYNC_RELAY_INTERVAL" envDefault:"2s"`
	LogLevel      string        `env:"REQSYNC_LOG_LEVEL" envDefault:"info"`
}

// DefaultRelayInterval matches the REQSYNC_RELAY_INTERVAL default.
const DefaultRelayInterval = 2 * time.Second

// Default returns the configuration used when the environment sets nothing.
func Default() Config {
	return Config{Format: "text", RelayInterval: DefaultRelayInterval, LogLevel: "info"}
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks value ranges env.Parse cannot express.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("REQSYNC_FORMAT: invalid format %q: must be text or json", c.Format)
	}
	if c.RelayInterval <= 0 {
		return fmt.Errorf("REQSYNC_RELAY_INTERVAL: must be positive, got %s", c.RelayInterval)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("REQSYNC_LOG_LEVEL: %w", err)
	}
	return nil
}

// Level returns the configured log level. Validate guarantees it parses.
func (c Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}
