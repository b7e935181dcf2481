// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bureau-foundation/objex/lib/codec"
	"github.com/bureau-foundation/objex/lib/value"
)

// buildMessage returns a dictionary from an optional JSON (with
// comments) document plus key=value assignments. Assignments override
// document entries.
func buildMessage(documentPath string, assignments []string) (*value.Value, error) {
	message := value.NewDictionary()
	if documentPath != "" {
		data, err := readInput(documentPath)
		if err != nil {
			return nil, err
		}
		document, err := codec.ValueFromJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", documentPath, err)
		}
		if !document.Is(value.TypeDictionary) {
			document.Release()
			return nil, fmt.Errorf("%s: message must be a JSON object, got %s", documentPath, document.Type())
		}
		message.Release()
		message = document
	}

	for _, assignment := range assignments {
		key, raw, ok := strings.Cut(assignment, "=")
		if !ok || key == "" {
			message.Release()
			return nil, fmt.Errorf("argument %q is not key=value", assignment)
		}
		if value.IsReservedKey(key) {
			message.Release()
			return nil, fmt.Errorf("key %q uses the reserved prefix %q", key, value.ReservedPrefix)
		}
		message.Move(key, parseScalar(raw))
	}
	return message, nil
}

// parseScalar types a command-line value: null, booleans, integers,
// and floats are recognized, anything else is a string.
func parseScalar(raw string) *value.Value {
	switch raw {
	case "null":
		return value.Null
	case "true":
		return value.NewBool(true)
	case "false":
		return value.NewBool(false)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return value.NewInt64(n)
	}
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return value.NewUInt64(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return value.NewDouble(f)
	}
	return value.NewString(raw)
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path, or to stdout when path is "-".
func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
