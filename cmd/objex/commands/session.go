// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/objex/cmd/objex/cli"
	"github.com/bureau-foundation/objex/lib/config"
	"github.com/bureau-foundation/objex/lib/connection"
	"github.com/bureau-foundation/objex/lib/wire"
	"github.com/bureau-foundation/objex/transport/unixsock"
)

// networkFlags are shared by the commands that open connections.
type networkFlags struct {
	configPath string
	service    string
}

func (f *networkFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to objex.yaml (default $OBJEX_CONFIG, else built-in defaults)")
	flagSet.StringVarP(&f.service, "socket", "s", "echo", "service name under the socket directory, or an absolute socket path")
}

// session is what a networked command runs with.
type session struct {
	config  *config.Config
	logger  *slog.Logger
	runtime *connection.Runtime
}

func (s *session) close() {
	s.runtime.Close()
}

// openSession loads configuration, builds the logger, and assembles a
// connection runtime over Unix sockets.
func openSession(configPath, command string) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := cli.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", command)

	runtime, err := newRuntime(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{config: cfg, logger: logger, runtime: runtime}, nil
}

// loadConfig reads the --config file, else $OBJEX_CONFIG. With neither,
// the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv("OBJEX_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.Resolve()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newRuntime maps the transport and connection sections onto a
// runtime whose network is the configured socket directory.
func newRuntime(cfg *config.Config, logger *slog.Logger) (*connection.Runtime, error) {
	compression, err := unixsock.ParseCompression(cfg.Transport.Compression)
	if err != nil {
		return nil, fmt.Errorf("transport.compression: %w", err)
	}
	timeout, err := cfg.SyncTimeout()
	if err != nil {
		return nil, err
	}

	network := unixsock.Network{
		Directory: cfg.Paths.SocketDirectory,
		Options: unixsock.Options{
			Logger: logger,
			Limits: unixsock.Limits{
				MaxPayload: cfg.Transport.MaxPayload,
				MaxHandles: cfg.Transport.MaxHandles,
			},
			Compression:          compression,
			CompressionThreshold: cfg.Transport.CompressionThreshold,
		},
	}

	runtime := connection.NewRuntime(network, logger)
	runtime.SyncTimeout = timeout
	runtime.WireOptions = []wire.Option{wire.WithMaxDepth(cfg.Connection.MaxDepth)}
	return runtime, nil
}
