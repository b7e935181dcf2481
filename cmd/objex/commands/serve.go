// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/objex/cmd/objex/cli"
	"github.com/bureau-foundation/objex/lib/connection"
	"github.com/bureau-foundation/objex/lib/value"
)

func serveCommand() *cli.Command {
	var flags networkFlags

	return &cli.Command{
		Name:    "serve",
		Summary: "Run an echo service on a Unix socket",
		Description: `Listen on a Unix socket and answer every request with a copy of
its entries plus "echo": true. Messages that do not expect a reply are
logged and dropped. Runs until interrupted.`,
		Usage: "objex serve [--socket NAME] [flags]",
		Examples: []cli.Example{
			{
				Description: "Serve under the configured socket directory",
				Command:     "objex serve --socket echo",
			},
			{
				Description: "Serve on an explicit socket path",
				Command:     "objex serve --socket /tmp/echo.sock",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("serve takes no positional arguments, got %q", args[0])
			}

			session, err := openSession(flags.configPath, "serve")
			if err != nil {
				return err
			}
			defer session.close()

			if err := session.config.EnsurePaths(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serveEcho(ctx, session.runtime, flags.service)
		},
	}
}

// serveEcho runs an echo listener until ctx ends or the listener fails.
func serveEcho(ctx context.Context, runtime *connection.Runtime, name string) error {
	listener, err := startEcho(runtime, name)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		listener.Cancel()
		runtime.Logger.Info("stopped", "service", name)
		return nil
	case <-listener.Done():
		listener.Cancel()
		return fmt.Errorf("listener for %s stopped receiving", name)
	}
}

// startEcho publishes name and answers its peers' requests.
func startEcho(runtime *connection.Runtime, name string) (*connection.Connection, error) {
	listener, err := runtime.Listen(name)
	if err != nil {
		return nil, err
	}
	logger := runtime.Logger.With("service", name)

	listener.SetEventHandler(func(event connection.Event) {
		if event.Peer != nil {
			acceptPeer(event.Peer, logger)
			return
		}
		if err := event.Err(); err != nil && !errors.Is(err, connection.ErrConnectionInvalid) {
			logger.Warn("listener interrupted", "error", err)
		}
	})
	listener.Resume()
	logger.Info("serving")
	return listener, nil
}

func acceptPeer(peer *connection.Connection, logger *slog.Logger) {
	peer.SetEventHandler(func(event connection.Event) {
		if err := event.Err(); err != nil {
			logger.Info("peer gone", "pid", peer.PID(), "uid", peer.EUID(), "error", err)
			return
		}
		reply := echoReply(event.Message)
		if reply == nil {
			logger.Info("message without reply", "pid", peer.PID(), "entries", event.Message.Count())
			return
		}
		defer reply.Release()
		logger.Debug("echoing request", "pid", peer.PID(), "entries", event.Message.Count())
		peer.SendMessage(reply)
	})
	peer.Resume()
}

// echoReply returns the reply to request carrying request's entries
// and "echo": true, or nil if request does not expect a reply.
func echoReply(request *value.Value) *value.Value {
	reply := connection.CreateReply(request)
	if reply == nil {
		return nil
	}
	for key, child := range request.Entries() {
		if value.IsReservedKey(key) {
			continue
		}
		reply.Set(key, child)
	}
	reply.PutBool("echo", true)
	return reply
}
