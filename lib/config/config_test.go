// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "objex.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Transport.Compression != "none" {
		t.Errorf("expected compression=none, got %s", cfg.Transport.Compression)
	}
	if cfg.Transport.MaxHandles != 253 {
		t.Errorf("expected max_handles=253, got %d", cfg.Transport.MaxHandles)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresObjexConfig(t *testing.T) {
	t.Setenv("OBJEX_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when OBJEX_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "OBJEX_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithObjexConfig(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
paths:
  socket_directory: /test/sockets
connection:
  sync_timeout: 5s
`)
	t.Setenv("OBJEX_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Paths.SocketDirectory != "/test/sockets" {
		t.Errorf("expected socket_directory=/test/sockets, got %s", cfg.Paths.SocketDirectory)
	}
	timeout, err := cfg.SyncTimeout()
	if err != nil {
		t.Fatalf("SyncTimeout: %v", err)
	}
	if timeout != 5*time.Second {
		t.Errorf("expected sync timeout 5s, got %v", timeout)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
environment: development
transport:
  compression: zstd
  compression_threshold: 1024
logging:
  level: debug
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Transport.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Transport.Compression)
	}
	if cfg.Transport.CompressionThreshold != 1024 {
		t.Errorf("expected compression_threshold=1024, got %d", cfg.Transport.CompressionThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level=debug, got %s", cfg.Logging.Level)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Transport.MaxPayload != 64<<20 {
		t.Errorf("expected default max_payload, got %d", cfg.Transport.MaxPayload)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	configPath := writeConfig(t, "transport: [not, a, mapping")
	if _, err := LoadFile(configPath); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
environment: production

paths:
  socket_directory: /default/sockets

transport:
  compression: none

production:
  paths:
    socket_directory: /prod/sockets
  transport:
    compression: lz4
    max_handles: 16
  connection:
    sync_timeout: 2s
  logging:
    level: warn
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.SocketDirectory != "/prod/sockets" {
		t.Errorf("expected socket_directory=/prod/sockets, got %s", cfg.Paths.SocketDirectory)
	}
	if cfg.Transport.Compression != "lz4" {
		t.Errorf("expected compression=lz4, got %s", cfg.Transport.Compression)
	}
	if cfg.Transport.MaxHandles != 16 {
		t.Errorf("expected max_handles=16, got %d", cfg.Transport.MaxHandles)
	}
	if cfg.Connection.SyncTimeout != "2s" {
		t.Errorf("expected sync_timeout=2s, got %s", cfg.Connection.SyncTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level=warn, got %s", cfg.Logging.Level)
	}
	// Unset override fields leave the base value alone.
	if cfg.Logging.Format != "auto" {
		t.Errorf("expected format=auto, got %s", cfg.Logging.Format)
	}
}

func TestProductionDefaults(t *testing.T) {
	configPath := writeConfig(t, "environment: production\n")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected production format=json, got %s", cfg.Logging.Format)
	}
}

func TestOtherEnvironmentSectionsIgnored(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
production:
  transport:
    compression: zstd
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Transport.Compression != "none" {
		t.Errorf("production section applied to staging: compression=%s", cfg.Transport.Compression)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// Only ${VAR} references inside the file consult the environment.
	t.Setenv("OBJEX_ENVIRONMENT", "staging")
	t.Setenv("OBJEX_SOCKET_DIRECTORY", "/env/sockets")

	configPath := writeConfig(t, `
environment: development
paths:
  socket_directory: /file/sockets
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s", cfg.Environment)
	}
	if cfg.Paths.SocketDirectory != "/file/sockets" {
		t.Errorf("expected socket_directory=/file/sockets from file, got %s", cfg.Paths.SocketDirectory)
	}
}

func TestSocketDirectoryExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	configPath := writeConfig(t, `
paths:
  socket_directory: ${HOME}/.objex
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.SocketDirectory != "/home/tester/.objex" {
		t.Errorf("expected expanded socket directory, got %s", cfg.Paths.SocketDirectory)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/objex",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/objex",
		},
		{
			input:    "${OBJEX_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "empty socket directory",
			modify: func(c *Config) {
				c.Paths.SocketDirectory = ""
			},
			wantErr: true,
		},
		{
			name: "unknown compression",
			modify: func(c *Config) {
				c.Transport.Compression = "gzip"
			},
			wantErr: true,
		},
		{
			name: "too many handles",
			modify: func(c *Config) {
				c.Transport.MaxHandles = 254
			},
			wantErr: true,
		},
		{
			name: "zero payload",
			modify: func(c *Config) {
				c.Transport.MaxPayload = 0
			},
			wantErr: true,
		},
		{
			name: "malformed sync timeout",
			modify: func(c *Config) {
				c.Connection.SyncTimeout = "soon"
			},
			wantErr: true,
		},
		{
			name: "negative sync timeout",
			modify: func(c *Config) {
				c.Connection.SyncTimeout = "-1s"
			},
			wantErr: true,
		},
		{
			name: "no sync timeout",
			modify: func(c *Config) {
				c.Connection.SyncTimeout = ""
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Logging.Format = "xml"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.SocketDirectory = filepath.Join(t.TempDir(), "run", "objex")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	info, err := os.Stat(cfg.Paths.SocketDirectory)
	if err != nil {
		t.Fatalf("socket directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", cfg.Paths.SocketDirectory)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("socket directory mode = %v, want 0700", info.Mode().Perm())
	}
}

func TestResolveDefault(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg := Default()
	cfg.Resolve()
	if cfg.Paths.SocketDirectory != "/run/user/1000/objex" {
		t.Errorf("socket directory = %q, want /run/user/1000/objex", cfg.Paths.SocketDirectory)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	cfg = Default()
	cfg.Resolve()
	if cfg.Paths.SocketDirectory != "/tmp/objex" {
		t.Errorf("socket directory = %q, want /tmp/objex", cfg.Paths.SocketDirectory)
	}
}
