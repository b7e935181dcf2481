// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/objex/cmd/objex/cli"
	"github.com/bureau-foundation/objex/lib/connection"
	"github.com/bureau-foundation/objex/lib/value"
)

func sendCommand(stdout io.Writer) *cli.Command {
	var (
		flags        networkFlags
		documentPath string
		timeout      time.Duration
	)

	return &cli.Command{
		Name:    "send",
		Summary: "Send one request and print the reply",
		Description: `Connect to a service, send a request built from a JSON message
document and key=value arguments, wait for the reply, and print it.

Values in key=value arguments are typed: null, true, false, integers,
and floats are recognized, anything else is sent as a string. The
message document may contain comments and typed objects such as
{"$uuid": "..."}, {"$date": "..."}, {"$binary": "<base64>"}, and
{"$uint64": "..."}.`,
		Usage: "objex send [--socket NAME] [--message FILE] [key=value ...] [flags]",
		Examples: []cli.Example{
			{
				Description: "Call the echo service",
				Command:     "objex send --socket echo text=hello count=3",
			},
			{
				Description: "Send a message document",
				Command:     "objex send --socket /tmp/echo.sock --message request.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVarP(&documentPath, "message", "m", "", "JSON message document (- for stdin)")
			flagSet.DurationVar(&timeout, "timeout", 0, "give up after this long (0 uses connection.sync_timeout)")
			return flagSet
		},
		Run: func(args []string) error {
			message, err := buildMessage(documentPath, args)
			if err != nil {
				return err
			}
			defer message.Release()

			session, err := openSession(flags.configPath, "send")
			if err != nil {
				return err
			}
			defer session.close()

			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return sendRequest(ctx, session.runtime, flags.service, message, stdout)
		},
	}
}

// sendRequest sends message to the named service, waits for the reply,
// and writes its description to w.
func sendRequest(ctx context.Context, runtime *connection.Runtime, name string, message *value.Value, w io.Writer) error {
	client, err := runtime.Connect(ctx, name)
	if err != nil {
		return err
	}
	defer client.Cancel()

	logger := runtime.Logger.With("service", name)
	client.SetEventHandler(func(event connection.Event) {
		if err := event.Err(); err != nil {
			if !errors.Is(err, connection.ErrConnectionInvalid) {
				logger.Warn("connection event", "error", err)
			}
			return
		}
		logger.Info("unsolicited message", "entries", event.Message.Count())
	})
	client.Resume()

	started := runtime.Clock.Now()
	reply, err := client.SendMessageWithReplySync(ctx, message)
	if err != nil {
		return fmt.Errorf("calling %s: %w", name, err)
	}
	defer reply.Release()

	logger.Debug("reply received",
		"elapsed", runtime.Clock.Now().Sub(started),
		"peer_pid", client.PID(),
		"peer_uid", client.EUID(),
	)
	_, err = fmt.Fprintln(w, reply.Describe())
	return err
}
