// Package config loads subsheet settings from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/roach88/subsheet/internal/recalc"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "subsheet.yaml"

// Config holds all subsheet settings.
type Config struct {
	Database   string          `yaml:"database"`
	SchemaDir  string          `yaml:"schema_dir"`
	Locale     string          `yaml:"locale"`
	Account    string          `yaml:"account"`
	MaxRows    int             `yaml:"max_rows"`
	PageSize   int             `yaml:"page_size"`
	AsyncLimit int             `yaml:"async_limit"`
	ExportDir  string          `yaml:"export_dir"`
	LogLevel   string          `yaml:"log_level"` // debug, info, warn, error
	Flags      map[string]bool `yaml:"flags"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:   "subsheet.db",
		SchemaDir:  "schema",
		Locale:     "en",
		MaxRows:    200,
		PageSize:   200,
		AsyncLimit: 8,
		ExportDir:  "exports",
		LogLevel:   "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// a malformed one is an error. SUBSHEET_DB and SUBSHEET_ACCOUNT override
// the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SUBSHEET_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("SUBSHEET_ACCOUNT"); v != "" {
		c.Account = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxRows < 1 {
		return fmt.Errorf("max_rows must be positive, got %d", c.MaxRows)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.AsyncLimit < 1 {
		return fmt.Errorf("async_limit must be positive, got %d", c.AsyncLimit)
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
	}
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the configured slog level, Info when unset.
func (c *Config) Level() slog.Level {
	if l, ok := levels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Tag returns the parsed locale, English when unparsable.
func (c *Config) Tag() language.Tag {
	t, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return t
}

// Env returns the caller context passed to every recompute.
func (c *Config) Env() recalc.Env {
	flags := make(map[string]bool, len(c.Flags))
	for k, v := range c.Flags {
		flags[k] = v
	}
	return recalc.Env{Account: c.Account, Locale: c.Tag(), Flags: flags}
}
