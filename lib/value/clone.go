// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import "fmt"

// Clone returns a deep copy of v with its own reference. Containers
// and byte strings are copied, handles are duplicated at the
// capability level, and static values are returned as is. If a
// capability cannot be duplicated, everything copied so far is
// released and the error is returned.
func (v *Value) Clone() (*Value, error) {
	if v == nil {
		faultf("Clone", "nil value")
	}
	if v.static {
		return v, nil
	}

	switch p := v.payload.(type) {
	case *boolPayload:
		return NewBoolDistinct(p.value), nil
	case *int64Payload:
		return NewInt64(p.value), nil
	case *uint64Payload:
		return NewUInt64(p.value), nil
	case *doublePayload:
		return NewDouble(p.value), nil
	case *datePayload:
		return NewDate(p.nanoseconds), nil
	case *stringPayload:
		return NewStringBytes(p.bytes), nil
	case *binaryPayload:
		return NewBinary(p.bytes), nil
	case *uuidPayload:
		return NewUUID(p.id), nil
	case *handlePayload:
		duplicate, err := p.capability.Duplicate()
		if err != nil {
			return nil, fmt.Errorf("duplicating %s handle %s: %w", p.kind, p.capability.Identity(), err)
		}
		return NewHandle(p.kind, duplicate), nil
	case *dictionaryPayload:
		copied := newValue(&dictionaryPayload{
			entries: make([]dictionaryEntry, 0, len(p.entries)),
			index:   make(map[string]int, len(p.entries)),
		})
		for _, entry := range p.entries {
			child, err := entry.value.Clone()
			if err != nil {
				copied.Release()
				return nil, err
			}
			copied.store(entry.key, child)
		}
		return copied, nil
	case *arrayPayload:
		copied := newValue(&arrayPayload{elements: make([]*Value, 0, len(p.elements))})
		for _, element := range p.elements {
			child, err := element.Clone()
			if err != nil {
				copied.Release()
				return nil, err
			}
			copied.AppendMove(child)
		}
		return copied, nil
	default:
		faultf("Clone", "cannot clone %s value", v.typ)
		return nil, nil
	}
}
