package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags the user actually set are
// applied on top of the file configuration.
type Flags struct {
	ConfigPath    string
	LogLevel      string
	LogFormat     string
	MetricsAddr   string
	PollInterval  time.Duration
	TUI           bool
	Verbose       bool
	SkipPreflight bool
}

// BindFlags registers the flags on fs.
func BindFlags(fs *pflag.FlagSet, f *Flags) {
	def := DefaultConfig()

	fs.StringVarP(&f.ConfigPath, "config", "c", DefaultPath, "Path to the TOML config file (created if missing)")
	fs.StringVar(&f.LogLevel, "log-level", def.LogLevel, "Log level: off, error, warn, info, debug, trace")
	fs.StringVar(&f.LogFormat, "log-format", def.LogFormat, `Log format: "text", "json" or "journal"`)
	fs.StringVar(&f.MetricsAddr, "metrics", def.MetricsAddr, `Prometheus metrics address ("" disables)`)
	fs.DurationVar(&f.PollInterval, "poll-interval", def.PollInterval.Duration, "Interval between process liveness checks")
	fs.BoolVar(&f.TUI, "tui", def.TUI, "Show a live terminal dashboard")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Verbose logging (same as --log-level debug)")
	fs.BoolVar(&f.SkipPreflight, "skip-preflight", false, "Skip preflight checks")
}

// Apply copies every flag explicitly set on fs into cfg.
func (f *Flags) Apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = f.LogFormat
	}
	if fs.Changed("metrics") {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if fs.Changed("poll-interval") {
		cfg.PollInterval = Duration{f.PollInterval}
	}
	if fs.Changed("tui") {
		cfg.TUI = f.TUI
	}
	if f.Verbose {
		cfg.LogLevel = "debug"
	}
}
