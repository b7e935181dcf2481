// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/objex/cmd/objex/cli"
	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/lib/wire"
)

func packCommand(stdout io.Writer) *cli.Command {
	var (
		documentPath string
		outputPath   string
		bigEndian    bool
	)

	return &cli.Command{
		Name:    "pack",
		Summary: "Encode a JSON message document in the wire format",
		Description: `Read a JSON message document (comments allowed), apply any
key=value arguments, and write the packed buffer. The buffer is in the
host's byte order unless --big-endian is given; readers accept both.`,
		Usage: "objex pack --message FILE [--out FILE] [key=value ...] [flags]",
		Examples: []cli.Example{
			{
				Description: "Pack a document and describe the result",
				Command:     "objex pack --message request.jsonc --out request.bin && objex dump request.bin",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pack", pflag.ContinueOnError)
			flagSet.StringVarP(&documentPath, "message", "m", "", "JSON message document (- for stdin)")
			flagSet.StringVarP(&outputPath, "out", "o", "-", "output file (- for stdout)")
			flagSet.BoolVar(&bigEndian, "big-endian", false, "write big-endian fields")
			return flagSet
		},
		Run: func(args []string) error {
			if documentPath == "" && len(args) == 0 {
				return fmt.Errorf("pack needs --message or key=value arguments")
			}
			message, err := buildMessage(documentPath, args)
			if err != nil {
				return err
			}
			defer message.Release()

			var opts []wire.Option
			if bigEndian {
				opts = append(opts, wire.WithByteOrder(binary.BigEndian))
			}
			data, err := packMessage(message, opts...)
			if err != nil {
				return err
			}
			return writeOutput(outputPath, stdout, data)
		},
	}
}

// packMessage encodes message in the wire format. Files hold no
// descriptors, so a tree with handles is refused.
func packMessage(message *value.Value, opts ...wire.Option) ([]byte, error) {
	packed, err := wire.Pack(message, opts...)
	if err != nil {
		return nil, err
	}
	if count := len(packed.Handles); count > 0 {
		packed.Close()
		return nil, fmt.Errorf("message carries %d handles, which cannot be written to a file", count)
	}
	return packed.Bytes, nil
}
