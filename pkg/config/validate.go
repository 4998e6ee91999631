package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks the configuration for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	l := c.Limits
	for name, d := range map[string]Duration{
		"max_stream": l.MaxStream,
		"max_watch":  l.MaxWatch,
		"max_fetch":  l.MaxFetch,
		"kill_grace": l.KillGrace,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s must be positive, got %s", name, d))
		}
	}
	if l.MaxLines <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_lines must be positive, got %d", l.MaxLines))
	}
	if l.DefaultLines <= 0 || (l.MaxLines > 0 && l.DefaultLines > l.MaxLines) {
		errs = append(errs, fmt.Errorf("limits.default_lines must be between 1 and max_lines, got %d", l.DefaultLines))
	}

	for name, src := range c.Sources {
		if name == "" || strings.ContainsAny(name, ": \t") {
			errs = append(errs, fmt.Errorf("source %q: name must be non-empty without spaces or colons", name))
		}
		if strings.TrimSpace(src.Command) == "" {
			errs = append(errs, fmt.Errorf("source %q: command is required", name))
		}
	}

	for name, path := range c.Files {
		if name == "" || strings.ContainsAny(name, ": \t") {
			errs = append(errs, fmt.Errorf("file %q: name must be non-empty without spaces or colons", name))
		}
		if strings.TrimSpace(path) == "" {
			errs = append(errs, fmt.Errorf("file %q: path is required", name))
		}
	}

	for i, path := range c.Compose {
		if strings.TrimSpace(path) == "" {
			errs = append(errs, fmt.Errorf("compose_files[%d]: path is required", i))
		}
	}

	return errs
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error; got %q", s)
	}
}
