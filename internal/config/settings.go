package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RuntimeConfig holds every environment-tunable knob the engine reads at
// startup, resolved with envconfig the way italolelis-seedbox_downloader's
// internal/config package resolves its own Config.
type RuntimeConfig struct {
	// DataDir overrides GetDataDir() when set, so a host process (or a test)
	// can point the Store and the flock lock somewhere other than the
	// per-user app directory.
	DataDir string `envconfig:"DOWNLOAD_DATA_DIR"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `envconfig:"DOWNLOAD_LOG_LEVEL" default:"info"`

	// ConnectTimeout bounds how long the Transfer worker waits to establish
	// the TCP connection and receive response headers for a GET request.
	ConnectTimeout time.Duration `envconfig:"DOWNLOAD_CONNECT_TIMEOUT" default:"30s"`

	// IdleTimeout bounds how long the Transfer worker will wait between
	// successive reads off the response body before treating the transfer
	// as stalled.
	IdleTimeout time.Duration `envconfig:"DOWNLOAD_IDLE_TIMEOUT" default:"30s"`

	// ProgressThresholdPercent is the minimum progress delta, in percentage
	// points, before the Transfer worker re-checks the Store and emits a
	// progress update.
	ProgressThresholdPercent float64 `envconfig:"DOWNLOAD_PROGRESS_THRESHOLD_PERCENT" default:"1.0"`
}

// LoadRuntimeConfig reads DOWNLOAD_* environment variables into a
// RuntimeConfig, applying the defaults above for anything unset.
func LoadRuntimeConfig() (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = GetDataDir()
	}
	return &cfg, nil
}

// SlogLevel translates LogLevel into the matching slog.Level, treating an
// unrecognised value as Info.
func (c *RuntimeConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
