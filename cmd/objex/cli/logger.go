// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/objex/lib/config"
)

// NewLogger creates the structured logger for a command from the
// logging section of the configuration. Format "auto" uses
// slog.TextHandler when stderr is a terminal and slog.JSONHandler when
// it is piped or redirected.
//
// Callers scope the logger with command-specific context via With():
//
//	logger = logger.With("command", "serve", "service", name)
func NewLogger(settings config.LoggingConfig) (*slog.Logger, error) {
	return newLogger(os.Stderr, settings, term.IsTerminal(int(os.Stderr.Fd())))
}

func newLogger(w io.Writer, settings config.LoggingConfig, terminal bool) (*slog.Logger, error) {
	var level slog.Level
	if settings.Level != "" {
		if err := level.UnmarshalText([]byte(settings.Level)); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch settings.Format {
	case "", "auto":
		if terminal {
			handler = slog.NewTextHandler(w, options)
		} else {
			handler = slog.NewJSONHandler(w, options)
		}
	case "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q", settings.Format)
	}
	return slog.New(handler), nil
}
