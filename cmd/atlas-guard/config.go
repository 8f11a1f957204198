// ABOUTME: Configuration loading for the atlas-guard diagnostic CLI
// ABOUTME: Loads TOML from flag/env/XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Data    DataConfig    `toml:"data"`
	Rules   RulesConfig   `toml:"rules"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
}

type DataConfig struct {
	// MemoryPath is where the encrypted long-term memory blob lives.
	MemoryPath string `toml:"memory_path"`
}

type RulesConfig struct {
	// Path to a YAML detection rule file. Empty means the compiled-in rules.
	Path string `toml:"path"`
}

type AuthConfig struct {
	MaxAttempts   int `toml:"max_attempts"`
	KeyIterations int `toml:"key_iterations"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Data:    DataConfig{MemoryPath: defaultMemoryPath()},
		Logging: LoggingConfig{Level: "warn", Format: "text"},
	}
}

// configPath resolves the config file location: ATLAS_GUARD_CONFIG, then
// the XDG config directory.
func configPath() string {
	if p := os.Getenv("ATLAS_GUARD_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "atlas-guard", "atlas-guard.toml")
}

func defaultMemoryPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "memory.enc"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "atlas-guard", "memory.enc")
}

// LoadConfig reads the config file at path, expanding ${VAR} references.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks field ranges and fills in unset defaults.
func (c *Config) Validate() error {
	if c.Data.MemoryPath == "" {
		c.Data.MemoryPath = defaultMemoryPath()
	}
	if c.Auth.MaxAttempts < 0 {
		return fmt.Errorf("auth.max_attempts must not be negative")
	}
	if c.Auth.KeyIterations < 0 {
		return fmt.Errorf("auth.key_iterations must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	return nil
}
