// Package config provides configuration management for stream-ripper.
//
// Configuration lives in a TOML file. A missing file is created with the
// defaults, and an existing file is written back after loading so that
// fields added in newer versions show up for the user to edit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrEmptyPath is returned when no configuration path is given.
var ErrEmptyPath = errors.New("empty config path")

// DefaultPath is used when --config is not given.
const DefaultPath = "config.toml"

// DefaultCommandTemplate records a stream with streamlink.
const DefaultCommandTemplate = `streamlink --force --logfile "logs/{source}_{timestamp}.log" --output "streams/{author}_{time:%Y%m%d-%H%M%S}.mp4" --progress no --twitch-disable-ads --default-stream "1080p, 720p, best" --url {url}`

// Config holds all configuration options.
type Config struct {
	// Logging
	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"` // text, json, journal
	LogsFolder string `toml:"logs_folder"`

	// Ripping
	StreamURLs    []string `toml:"stream_urls"`
	StreamlinkCLI string   `toml:"streamlink_cli"`
	PollInterval  Duration `toml:"poll_interval"`

	// Observability
	MetricsAddr string `toml:"metrics_addr"` // empty disables the HTTP server
	TUI         bool   `toml:"tui"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		LogsFolder:    "logs",
		StreamURLs:    []string{},
		StreamlinkCLI: DefaultCommandTemplate,
		PollInterval:  Duration{15 * time.Second},
		MetricsAddr:   "127.0.0.1:17092",
		TUI:           false,
	}
}

// LoadOrDefault loads the file at path, creating it with defaults when it
// does not exist. An existing file is re-saved to add missing fields.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a TOML file. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Duration is a time.Duration stored as a string such as "15s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}
