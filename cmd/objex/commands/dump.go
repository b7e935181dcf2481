// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/objex/cmd/objex/cli"
	"github.com/bureau-foundation/objex/lib/codec"
	"github.com/bureau-foundation/objex/lib/wire"
)

func dumpCommand(stdout io.Writer) *cli.Command {
	var (
		format     string
		outputPath string
		header     bool
		maxDepth   int
	)

	return &cli.Command{
		Name:    "dump",
		Summary: "Describe a packed message",
		Description: `Unpack a buffer in the objex wire format and print it.

Formats:
  text  one node per line with type annotations (default)
  cbor  the value tree exported as deterministic CBOR
  diag  the CBOR export in diagnostic notation

A file holds no descriptors, so buffers that reference handles are
rejected.`,
		Usage: "objex dump FILE [--format text|cbor|diag] [flags]",
		Examples: []cli.Example{
			{
				Description: "Describe a packed message",
				Command:     "objex dump message.bin",
			},
			{
				Description: "Export to CBOR",
				Command:     "objex dump message.bin --format cbor --out message.cbor",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.StringVarP(&format, "format", "f", "text", "output format: text, cbor, or diag")
			flagSet.StringVarP(&outputPath, "out", "o", "-", "output file (- for stdout)")
			flagSet.BoolVar(&header, "header", false, "print the container header before the tree (text and diag only)")
			flagSet.IntVar(&maxDepth, "max-depth", wire.DefaultMaxDepth, "deepest container nesting accepted")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("dump takes exactly one FILE argument (- for stdin)")
			}
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			output, err := dumpMessage(data, format, header, wire.WithMaxDepth(maxDepth))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return writeOutput(outputPath, stdout, output)
		},
	}
}

// dumpMessage unpacks data and renders it in format.
func dumpMessage(data []byte, format string, header bool, opts ...wire.Option) ([]byte, error) {
	switch format {
	case "text", "cbor", "diag":
	default:
		return nil, fmt.Errorf("unknown format %q (want text, cbor, or diag)", format)
	}
	if header && format == "cbor" {
		return nil, fmt.Errorf("--header does not apply to cbor output")
	}

	parsed, err := wire.ReadHeader(data)
	if err != nil {
		return nil, err
	}
	root, err := wire.Unpack(data, nil, opts...)
	if err != nil {
		return nil, err
	}
	defer root.Release()

	var prefix string
	if header {
		prefix = describeHeader(parsed)
	}

	switch format {
	case "text":
		return []byte(prefix + root.Describe() + "\n"), nil
	case "cbor":
		return codec.MarshalValue(root)
	default:
		encoded, err := codec.MarshalValue(root)
		if err != nil {
			return nil, err
		}
		notation, err := codec.Diagnose(encoded)
		if err != nil {
			return nil, err
		}
		return []byte(prefix + notation + "\n"), nil
	}
}

func describeHeader(header wire.Header) string {
	order := "little-endian"
	if header.BigEndian() {
		order = "big-endian"
	}
	return fmt.Sprintf("# %s %s, %d bytes, %d handles\n",
		order, header.Container, header.PayloadSize, header.HandleCount)
}
