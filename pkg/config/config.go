// Package config loads console-mcp settings from YAML or TOML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/devstroop/console-mcp/pkg/capture"
)

// Config represents a console-mcp configuration file.
type Config struct {
	Version   int               `yaml:"version"                 toml:"version"                 json:"version"`
	LogLevel  string            `yaml:"log_level,omitempty"     toml:"log_level,omitempty"     json:"log_level,omitempty"`
	Limits    Limits            `yaml:"limits"                  toml:"limits"                  json:"limits"`
	Sources   map[string]Source `yaml:"sources,omitempty"       toml:"sources,omitempty"       json:"sources,omitempty"`
	Files     map[string]string `yaml:"files,omitempty"         toml:"files,omitempty"         json:"files,omitempty"`
	Compose   []string          `yaml:"compose_files,omitempty" toml:"compose_files,omitempty" json:"compose_files,omitempty"`
	Units     []string          `yaml:"units,omitempty"         toml:"units,omitempty"         json:"units,omitempty"`
	CrashDirs []string          `yaml:"crash_dirs,omitempty"    toml:"crash_dirs,omitempty"    json:"crash_dirs,omitempty"`
	ExportDir string            `yaml:"export_dir,omitempty"    toml:"export_dir,omitempty"    json:"export_dir,omitempty"`
}

// Limits bounds every acquisition call.
type Limits struct {
	MaxStream      Duration `yaml:"max_stream"      toml:"max_stream"      json:"max_stream"`
	MaxWatch       Duration `yaml:"max_watch"       toml:"max_watch"       json:"max_watch"`
	MaxFetch       Duration `yaml:"max_fetch"       toml:"max_fetch"       json:"max_fetch"`
	KillGrace      Duration `yaml:"kill_grace"      toml:"kill_grace"      json:"kill_grace"`
	DefaultLines   int      `yaml:"default_lines"   toml:"default_lines"   json:"default_lines"`
	MaxLines       int      `yaml:"max_lines"       toml:"max_lines"       json:"max_lines"`
	SeparateStderr bool     `yaml:"separate_stderr" toml:"separate_stderr" json:"separate_stderr"`
}

// Source is a custom log command exposed as a "custom" source.
type Source struct {
	Command     string   `yaml:"command"               toml:"command"               json:"command"`
	Args        []string `yaml:"args,omitempty"        toml:"args,omitempty"        json:"args,omitempty"`
	Description string   `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		Limits: Limits{
			MaxStream:    Duration(30 * time.Second),
			MaxWatch:     Duration(60 * time.Second),
			MaxFetch:     Duration(60 * time.Second),
			KillGrace:    Duration(2 * time.Second),
			DefaultLines: 200,
			MaxLines:     10000,
		},
		CrashDirs: []string{
			"${home}/Library/Logs/DiagnosticReports",
			"/Library/Logs/DiagnosticReports",
			"/var/crash",
		},
		ExportDir: "${home}/.local/share/console-mcp/exports",
	}
}

// EngineLimits converts the configured limits for the capture engine.
func (c *Config) EngineLimits() capture.Limits {
	return capture.Limits{
		MaxFetchDuration:  c.Limits.MaxFetch.Std(),
		MaxStreamDuration: c.Limits.MaxStream.Std(),
		MaxWatchDuration:  c.Limits.MaxWatch.Std(),
		MaxLines:          c.Limits.MaxLines,
		KillGrace:         c.Limits.KillGrace.Std(),
		SeparateStderr:    c.Limits.SeparateStderr,
	}
}

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
