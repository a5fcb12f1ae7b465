// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads tool configuration for Lattice commands.
//
// Configuration comes from a single YAML file named by the
// LATTICE_CONFIG environment variable or a --config flag. There is no
// automatic discovery: commands work with built-in defaults when no
// file is named, and a named file that cannot be read is an error.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the tool configuration.
type Config struct {
	// Backend configures the connection to the sync backend.
	Backend BackendConfig `yaml:"backend"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// BackendConfig locates the backend's websocket endpoint.
type BackendConfig struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:29325/ws".
	URL string `yaml:"url"`

	// Codec selects the frame encoding: "json" (default) or "cbor".
	Codec string `yaml:"codec"`

	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is the minimum slog level: "debug", "info", "warn",
	// "error".
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog.Level. Unknown
// names (rejected by Validate anyway) map to warn.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			URL:            "ws://localhost:29325/ws",
			Codec:          "json",
			ConnectTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// Load reads the configuration file at path, applying defaults for
// absent fields. An empty path falls back to the LATTICE_CONFIG
// environment variable; if that is also empty the defaults are
// returned as-is.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("LATTICE_CONFIG")
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the commands cannot act on.
func (c Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url must not be empty")
	}
	switch c.Backend.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("backend.codec must be %q or %q, got %q", "json", "cbor", c.Backend.Codec)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	if c.Backend.ConnectTimeout <= 0 {
		return fmt.Errorf("backend.connect_timeout must be positive, got %s", c.Backend.ConnectTimeout)
	}
	return nil
}
