// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// objex serves, calls, and inspects typed object messages over Unix
// sockets. Run "objex --help" for the command list.
package main

import (
	"os"

	"github.com/bureau-foundation/objex/cmd/objex/commands"
	"github.com/bureau-foundation/objex/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
