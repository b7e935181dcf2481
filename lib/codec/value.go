// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/bureau-foundation/objex/lib/value"
)

// CBOR tags for value types with no native representation.
const (
	TagUUID uint64 = 37

	// The remaining tags are first-come-first-served numbers in the
	// range RFC 8949 leaves open.
	TagUnsigned uint64 = 0x6f626a00
	TagHandle   uint64 = 0x6f626a01
	TagError    uint64 = 0x6f626a02
	TagDate     uint64 = 0x6f626a03
)

// ErrHandle is returned by UnmarshalValue for exported handles.
var ErrHandle = errors.New("codec: handles cannot be rebuilt from a document")

// MarshalValue encodes v, which may be any value type, as CBOR.
func MarshalValue(v *value.Value) ([]byte, error) {
	if v == nil {
		return nil, errors.New("codec: nil value")
	}
	return Marshal(toDocument(v))
}

// exportFrame is one container on the explicit export stack.
type exportFrame struct {
	source *value.Value
	target any
}

// toDocument converts v to the Go form the CBOR encoder understands.
// It walks containers with an explicit stack so deep trees cannot
// exhaust the goroutine stack.
func toDocument(root *value.Value) any {
	result, frame := exportNode(root)
	var stack []exportFrame
	if frame != nil {
		stack = append(stack, *frame)
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch target := top.target.(type) {
		case map[string]any:
			for key, child := range top.source.Entries() {
				converted, nested := exportNode(child)
				target[key] = converted
				if nested != nil {
					stack = append(stack, *nested)
				}
			}
		case []any:
			for i, child := range top.source.Values() {
				converted, nested := exportNode(child)
				target[i] = converted
				if nested != nil {
					stack = append(stack, *nested)
				}
			}
		}
	}
	return result
}

// exportNode converts a scalar, or allocates the Go container for a
// container value and returns a frame to fill it.
func exportNode(v *value.Value) (any, *exportFrame) {
	switch v.Type() {
	case value.TypeDictionary:
		target := make(map[string]any, v.Count())
		return target, &exportFrame{source: v, target: target}
	case value.TypeArray:
		target := make([]any, v.Count())
		return target, &exportFrame{source: v, target: target}
	case value.TypeNull:
		return nil, nil
	case value.TypeBool:
		return v.Bool(), nil
	case value.TypeInt64:
		return v.Int64(), nil
	case value.TypeUInt64:
		return cbor.Tag{Number: TagUnsigned, Content: v.UInt64()}, nil
	case value.TypeDouble:
		return v.Double(), nil
	case value.TypeDate:
		return cbor.Tag{Number: TagDate, Content: v.Date()}, nil
	case value.TypeString:
		return v.StringValue(), nil
	case value.TypeBinary:
		return v.Bytes(), nil
	case value.TypeUUID:
		id := v.UUID()
		return cbor.Tag{Number: TagUUID, Content: id[:]}, nil
	case value.TypeHandle:
		return cbor.Tag{Number: TagHandle, Content: []string{v.HandleKind().String(), v.Handle().Identity()}}, nil
	case value.TypeError:
		return cbor.Tag{Number: TagError, Content: v.ErrorDescription()}, nil
	default:
		value.RaiseFault("codec.MarshalValue", "cannot export %s value", v.Type())
		return nil, nil
	}
}

// UnmarshalValue decodes a CBOR document produced by MarshalValue, or
// any CBOR with text map keys, into a new Value. Dictionary entries
// are inserted in sorted key order.
func UnmarshalValue(data []byte) (*value.Value, error) {
	var document any
	if err := Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("decoding CBOR: %w", err)
	}
	return fromDocument(document)
}

type importFrame struct {
	source any
	target *value.Value
}

func fromDocument(document any) (*value.Value, error) {
	root, frame, err := importNode(document)
	if err != nil {
		return nil, err
	}
	var stack []importFrame
	if frame != nil {
		stack = append(stack, *frame)
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch source := top.source.(type) {
		case map[string]any:
			for _, key := range slices.Sorted(maps.Keys(source)) {
				child, nested, err := importNode(source[key])
				if err != nil {
					root.Release()
					return nil, fmt.Errorf("key %q: %w", key, err)
				}
				if value.IsReservedKey(key) {
					top.target.MoveReserved(key, child)
				} else {
					top.target.Move(key, child)
				}
				if nested != nil {
					stack = append(stack, *nested)
				}
			}
		case []any:
			for i, element := range source {
				child, nested, err := importNode(element)
				if err != nil {
					root.Release()
					return nil, fmt.Errorf("index %d: %w", i, err)
				}
				top.target.AppendMove(child)
				if nested != nil {
					stack = append(stack, *nested)
				}
			}
		}
	}
	return root, nil
}

func importNode(node any) (*value.Value, *importFrame, error) {
	switch n := node.(type) {
	case nil:
		return value.Null, nil, nil
	case bool:
		return value.NewBool(n), nil, nil
	case int64:
		return value.NewInt64(n), nil, nil
	case uint64:
		if n <= math.MaxInt64 {
			return value.NewInt64(int64(n)), nil, nil
		}
		return value.NewUInt64(n), nil, nil
	case float64:
		return value.NewDouble(n), nil, nil
	case float32:
		return value.NewDouble(float64(n)), nil, nil
	case string:
		return value.NewString(n), nil, nil
	case []byte:
		return value.NewBinary(n), nil, nil
	case map[string]any:
		target := value.NewDictionary()
		return target, &importFrame{source: n, target: target}, nil
	case []any:
		target := value.NewArray()
		return target, &importFrame{source: n, target: target}, nil
	case cbor.Tag:
		v, err := importTag(n)
		return v, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported CBOR item of Go type %T", node)
	}
}

func importTag(tag cbor.Tag) (*value.Value, error) {
	switch tag.Number {
	case TagUnsigned:
		switch n := tag.Content.(type) {
		case uint64:
			return value.NewUInt64(n), nil
		case int64:
			if n >= 0 {
				return value.NewUInt64(uint64(n)), nil
			}
		}
		return nil, fmt.Errorf("unsigned tag over %T", tag.Content)
	case TagUUID:
		raw, ok := tag.Content.([]byte)
		if !ok {
			return nil, fmt.Errorf("uuid tag over %T", tag.Content)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("uuid tag: %w", err)
		}
		return value.NewUUID(id), nil
	case TagDate:
		nanoseconds, ok := asInt64(tag.Content)
		if !ok {
			return nil, fmt.Errorf("date tag over %T", tag.Content)
		}
		return value.NewDate(nanoseconds), nil
	case TagError:
		description, ok := tag.Content.(string)
		if !ok {
			return nil, fmt.Errorf("error tag over %T", tag.Content)
		}
		for _, canonical := range []*value.Value{
			value.ErrorConnectionInvalid, value.ErrorConnectionInterrupted, value.ErrorTerminationImminent,
		} {
			if canonical.ErrorDescription() == description {
				return canonical, nil
			}
		}
		return nil, fmt.Errorf("unknown error value %q", description)
	case TagHandle:
		return nil, ErrHandle
	default:
		return nil, fmt.Errorf("unsupported CBOR tag %d", tag.Number)
	}
}

func asInt64(n any) (int64, bool) {
	switch v := n.(type) {
	case int64:
		return v, true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}
