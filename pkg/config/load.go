package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that points at a config file.
const EnvPath = "CONSOLE_MCP_CONFIG"

// EnvLogLevel overrides log_level from the file.
const EnvLogLevel = "CONSOLE_MCP_LOG_LEVEL"

// Format is a config file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the encoding from the file extension; anything other than
// .toml is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes data over the defaults and expands ${home} in paths.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	interpolate(cfg)
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover returns the first config file in the chain: explicit, $CONSOLE_MCP_CONFIG,
// <dir>/console-mcp.yaml, <dir>/console-mcp.toml, ~/.config/console-mcp/config.yaml,
// ~/.config/console-mcp/config.toml. An explicit or environment path must exist.
// It returns "" when nothing is found.
func Discover(explicit, dir string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(EnvPath)} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config %s: %w", p, err)
		}
		return p, nil
	}

	candidates := []string{
		filepath.Join(dir, "console-mcp.yaml"),
		filepath.Join(dir, "console-mcp.toml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "console-mcp", "config.yaml"),
			filepath.Join(home, ".config", "console-mcp", "config.toml"),
		)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Resolve discovers, loads and validates the configuration. With no file
// found it returns the defaults and an empty path.
func Resolve(explicit, dir string) (*Config, string, error) {
	path, err := Discover(explicit, dir)
	if err != nil {
		return nil, "", err
	}
	cfg := Default()
	if path != "" {
		if cfg, err = Load(path); err != nil {
			return nil, path, err
		}
	} else {
		interpolate(cfg)
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, path, fmt.Errorf("config validation: %w", errors.Join(errs...))
	}
	return cfg, path, nil
}

// Save writes cfg to path in the format its extension implies, creating
// parent directories.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch FormatFor(path) {
	case FormatTOML:
		data, err = toml.Marshal(cfg)
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func interpolate(cfg *Config) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(s string) string {
		return strings.ReplaceAll(s, "${home}", home)
	}
	cfg.ExportDir = expand(cfg.ExportDir)
	for i, d := range cfg.CrashDirs {
		cfg.CrashDirs[i] = expand(d)
	}
	for name, src := range cfg.Sources {
		src.Command = expand(src.Command)
		for i, a := range src.Args {
			src.Args[i] = expand(a)
		}
		cfg.Sources[name] = src
	}
	for name, path := range cfg.Files {
		cfg.Files[name] = expand(path)
	}
	for i, path := range cfg.Compose {
		cfg.Compose[i] = expand(path)
	}
}
