package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/stream-ripper/internal/cliargs"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validLevels = map[string]bool{
	"off": true, "error": true, "warn": true, "warning": true,
	"info": true, "debug": true, "trace": true,
}

var validFormats = map[string]bool{"text": true, "json": true, "journal": true}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if len(cfg.StreamURLs) == 0 {
		errs = append(errs, ValidationError{
			Field:   "stream_urls",
			Message: "no stream URLs to rip have been specified",
		})
	}

	for i, u := range cfg.StreamURLs {
		if strings.TrimSpace(u) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("stream_urls[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	if argv := cliargs.Split(cfg.StreamlinkCLI); argv[0] == "" {
		errs = append(errs, ValidationError{
			Field:   "streamlink_cli",
			Message: "must name an executable",
		})
	}

	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of off, error, warn, info, debug, trace (got %q)", cfg.LogLevel),
		})
	}

	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'text', 'json' or 'journal' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.PollInterval.Duration <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// DuplicateURLs returns every stream URL listed more than once, in the
// order the second occurrence appears. Duplicates are allowed but each one
// gets its own capture process.
func DuplicateURLs(cfg *Config) []string {
	var dups []string
	seen := make(map[string]int, len(cfg.StreamURLs))
	for _, u := range cfg.StreamURLs {
		seen[u]++
		if seen[u] == 2 {
			dups = append(dups, u)
		}
	}
	return dups
}
