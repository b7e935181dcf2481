// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/objex/lib/value"
)

// jsonFrame is an open object or array while streaming tokens.
type jsonFrame struct {
	container *value.Value
	key       string
	haveKey   bool

	parent      *jsonFrame
	parentKey   string
	parentIndex int
}

// ValueFromJSON parses a JSON document, comments and trailing commas
// allowed, into a Value. Objects keep their key order. Keys in the
// reserved namespace are rejected.
func ValueFromJSON(data []byte) (*value.Value, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	var (
		root  *value.Value
		stack []*jsonFrame
	)
	fail := func(err error) (*value.Value, error) {
		root.Release()
		return nil, fmt.Errorf("parsing JSON at offset %d: %w", decoder.InputOffset(), err)
	}

	// place inserts child into the innermost open container, or makes
	// it the root.
	place := func(child *value.Value) (*jsonFrame, error) {
		frame := &jsonFrame{container: child}
		if len(stack) == 0 {
			if root != nil {
				child.Release()
				return nil, errors.New("more than one top-level value")
			}
			root = child
			return frame, nil
		}
		top := stack[len(stack)-1]
		frame.parent = top
		if top.container.Is(value.TypeArray) {
			frame.parentIndex = top.container.Count()
			top.container.AppendMove(child)
			return frame, nil
		}
		if value.IsReservedKey(top.key) {
			child.Release()
			return nil, fmt.Errorf("key %q is reserved", top.key)
		}
		frame.parentKey = top.key
		top.haveKey = false
		top.container.Move(top.key, child)
		return frame, nil
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}

		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if key, ok := token.(string); ok && top.container.Is(value.TypeDictionary) && !top.haveKey {
				top.key = key
				top.haveKey = true
				continue
			}
		}

		var child *value.Value
		switch t := token.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				container := value.NewArray()
				if t == '{' {
					container = value.NewDictionary()
				}
				frame, err := place(container)
				if err != nil {
					return fail(err)
				}
				stack = append(stack, frame)
			case '}', ']':
				closed := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				replacement, err := typedObject(closed.container)
				if err != nil {
					return fail(err)
				}
				if replacement != nil {
					root = replace(root, closed, replacement)
				}
			}
			continue
		case string:
			child = value.NewString(t)
		case json.Number:
			child, err = jsonNumber(t)
			if err != nil {
				return fail(err)
			}
		case bool:
			child = value.NewBool(t)
		case nil:
			child = value.Null
		default:
			return fail(fmt.Errorf("unexpected token %v", token))
		}
		if _, err := place(child); err != nil {
			return fail(err)
		}
	}
	if len(stack) > 0 {
		return fail(io.ErrUnexpectedEOF)
	}
	if root == nil {
		return nil, errors.New("parsing JSON: empty document")
	}
	return root, nil
}

// replace swaps a closed object for the scalar it spells, returning
// the possibly new root.
func replace(root *value.Value, closed *jsonFrame, replacement *value.Value) *value.Value {
	switch {
	case closed.parent == nil:
		root.Release()
		return replacement
	case closed.parent.container.Is(value.TypeArray):
		closed.parent.container.SetIndex(closed.parentIndex, replacement)
		replacement.Release()
	default:
		closed.parent.container.Move(closed.parentKey, replacement)
	}
	return root
}

func jsonNumber(number json.Number) (*value.Value, error) {
	text := number.String()
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return value.NewInt64(n), nil
		}
		if n, err := strconv.ParseUint(text, 10, 64); err == nil {
			return value.NewUInt64(n), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("number %s: %w", text, err)
	}
	return value.NewDouble(f), nil
}

// typedObject returns the scalar spelled by a one-key object such as
// {"$uuid": "..."}, or nil for an ordinary object.
func typedObject(object *value.Value) (*value.Value, error) {
	if !object.Is(value.TypeDictionary) || object.Count() != 1 {
		return nil, nil
	}
	key, content := object.EntryAt(0)
	if !strings.HasPrefix(key, "$") {
		return nil, nil
	}
	var text string
	if content.Is(value.TypeString) {
		text = content.StringValue()
	}
	switch key {
	case "$uuid":
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("$uuid %q: %w", text, err)
		}
		return value.NewUUID(id), nil
	case "$date":
		when, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, fmt.Errorf("$date %q: %w", text, err)
		}
		return value.NewDateFromTime(when), nil
	case "$binary":
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("$binary: %w", err)
		}
		return value.NewBinary(decoded), nil
	case "$uint64":
		if content.Is(value.TypeInt64) && content.Int64() >= 0 {
			return value.NewUInt64(uint64(content.Int64())), nil
		}
		if content.Is(value.TypeUInt64) {
			return value.NewUInt64(content.UInt64()), nil
		}
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("$uint64 %q: %w", text, err)
		}
		return value.NewUInt64(n), nil
	default:
		return nil, nil
	}
}
