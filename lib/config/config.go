// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for objex processes.
//
// Configuration is loaded from a single file specified by:
//   - OBJEX_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file may
// contain environment-specific sections (development, staging,
// production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
		"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for objex processes.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Transport configures the Unix socket transport.
	Transport TransportConfig `yaml:"transport"`

	// Connection configures connection behavior shared by a process.
	Connection ConnectionConfig `yaml:"connection"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Transport  *TransportConfig  `yaml:"transport,omitempty"`
	Connection *ConnectionConfig `yaml:"connection,omitempty"`
	Logging    *LoggingConfig    `yaml:"logging,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// SocketDirectory holds the sockets of named services. A service
	// name resolves to <SocketDirectory>/<name>.sock.
	SocketDirectory string `yaml:"socket_directory"`
}

// TransportConfig bounds and shapes frames on Unix sockets.
type TransportConfig struct {
	// MaxPayload is the largest frame payload in bytes.
	MaxPayload int `yaml:"max_payload"`

	// MaxHandles is the most descriptors one frame may carry.
	MaxHandles int `yaml:"max_handles"`

	// Compression is "none", "lz4", or "zstd".
	Compression string `yaml:"compression"`

	// CompressionThreshold is the smallest payload that is compressed.
	CompressionThreshold int `yaml:"compression_threshold"`
}

// ConnectionConfig configures connections.
type ConnectionConfig struct {
	// SyncTimeout bounds synchronous calls, as a Go duration string.
	// Empty or "0" waits indefinitely.
	SyncTimeout string `yaml:"sync_timeout"`

	// MaxDepth bounds container nesting in received messages.
	MaxDepth int `yaml:"max_depth"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text", "json", or "auto". Auto writes text to a
	// terminal and JSON otherwise.
	Format string `yaml:"format"`
}

// Default returns the default configuration for development.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			SocketDirectory: "${XDG_RUNTIME_DIR:-/tmp}/objex",
		},
		Transport: TransportConfig{
			MaxPayload:           64 << 20,
			MaxHandles:           253,
			Compression:          "none",
			CompressionThreshold: 4096,
		},
		Connection: ConnectionConfig{
			SyncTimeout: "30s",
			MaxDepth:    1 << 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the OBJEX_CONFIG environment variable.
//
// There are no fallbacks: if OBJEX_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("OBJEX_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("OBJEX_CONFIG environment variable not set; " +
			"set it to the path of your objex.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The only expansion performed is ${HOME}-style variables in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.Resolve()
	return cfg, nil
}

// Resolve applies the environment-specific overrides and expands
// variables in paths. LoadFile calls it; callers that start from
// [Default] without a file call it themselves.
func (c *Config) Resolve() {
	c.applyEnvironmentOverrides()
	c.expandVariables()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults to JSON logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Logging: &LoggingConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil && overrides.Paths.SocketDirectory != "" {
		c.Paths.SocketDirectory = overrides.Paths.SocketDirectory
	}

	if overrides.Transport != nil {
		if overrides.Transport.MaxPayload != 0 {
			c.Transport.MaxPayload = overrides.Transport.MaxPayload
		}
		if overrides.Transport.MaxHandles != 0 {
			c.Transport.MaxHandles = overrides.Transport.MaxHandles
		}
		if overrides.Transport.Compression != "" {
			c.Transport.Compression = overrides.Transport.Compression
		}
		if overrides.Transport.CompressionThreshold != 0 {
			c.Transport.CompressionThreshold = overrides.Transport.CompressionThreshold
		}
	}

	if overrides.Connection != nil {
		if overrides.Connection.SyncTimeout != "" {
			c.Connection.SyncTimeout = overrides.Connection.SyncTimeout
		}
		if overrides.Connection.MaxDepth != 0 {
			c.Connection.MaxDepth = overrides.Connection.MaxDepth
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.SocketDirectory = expandVars(c.Paths.SocketDirectory, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.SocketDirectory == "" {
		errs = append(errs, fmt.Errorf("paths.socket_directory is required"))
	}

	if c.Transport.MaxPayload <= 0 {
		errs = append(errs, fmt.Errorf("transport.max_payload must be positive"))
	}
	if c.Transport.MaxHandles <= 0 || c.Transport.MaxHandles > 253 {
		errs = append(errs, fmt.Errorf("transport.max_handles must be between 1 and 253"))
	}
	compressionValues := []string{"none", "lz4", "zstd"}
	if !contains(compressionValues, c.Transport.Compression) {
		errs = append(errs, fmt.Errorf("transport.compression must be one of: %v", compressionValues))
	}
	if c.Transport.CompressionThreshold < 0 {
		errs = append(errs, fmt.Errorf("transport.compression_threshold must not be negative"))
	}

	if _, err := c.SyncTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Connection.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("connection.max_depth must be positive"))
	}

	levelValues := []string{"debug", "info", "warn", "error"}
	if !contains(levelValues, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levelValues))
	}
	formatValues := []string{"auto", "text", "json"}
	if !contains(formatValues, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formatValues))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SyncTimeout parses Connection.SyncTimeout. Empty means no timeout.
func (c *Config) SyncTimeout() (time.Duration, error) {
	if c.Connection.SyncTimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Connection.SyncTimeout)
	if err != nil {
		return 0, fmt.Errorf("connection.sync_timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("connection.sync_timeout must not be negative")
	}
	return timeout, nil
}

// EnsurePaths creates the socket directory if it does not exist. The
// directory is private to the owning user.
func (c *Config) EnsurePaths() error {
	if c.Paths.SocketDirectory == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.SocketDirectory, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.SocketDirectory, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
