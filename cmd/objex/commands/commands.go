// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the objex CLI command tree: an echo service,
// a one-shot request client, and offline tools that pack JSON message
// documents into the wire format and describe packed buffers.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/objex/cmd/objex/cli"
	"github.com/bureau-foundation/objex/lib/version"
)

// Root builds and returns the complete objex command tree. Command
// output goes to stdout.
func Root() *cli.Command {
	return root(os.Stdout)
}

func root(stdout io.Writer) *cli.Command {
	var showVersion bool

	return &cli.Command{
		Name: "objex",
		Description: `objex: typed object messages over local sockets.

Serve and call message services over Unix sockets, and inspect the
binary wire format that messages travel in.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("objex", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Subcommands: []*cli.Command{
			serveCommand(),
			sendCommand(stdout),
			dumpCommand(stdout),
			packCommand(stdout),
		},
		Run: func(args []string) error {
			if showVersion {
				fmt.Fprintln(stdout, "objex", version.Full())
				return nil
			}
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q\n\nRun 'objex --help' for usage.", args[0])
			}
			return fmt.Errorf("subcommand required\n\nRun 'objex --help' for usage.")
		},
	}
}
