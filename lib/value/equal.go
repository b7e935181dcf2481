// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/zeebo/blake3"
)

// Equal reports whether a and b hold the same type and value.
// Dictionaries compare as sets of key/value pairs regardless of
// insertion order. Arrays compare element by element. Handles are
// equal when they have the same kind and refer to the same resource.
// Doubles compare numerically, except that NaN equals NaN.
func Equal(a, b *Value) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.typ != b.typ {
		return false
	}

	switch left := a.payload.(type) {
	case nullPayload:
		return true
	case *boolPayload:
		return left.value == b.payload.(*boolPayload).value
	case *int64Payload:
		return left.value == b.payload.(*int64Payload).value
	case *uint64Payload:
		return left.value == b.payload.(*uint64Payload).value
	case *doublePayload:
		right := b.payload.(*doublePayload).value
		if math.IsNaN(left.value) && math.IsNaN(right) {
			return true
		}
		return left.value == right
	case *datePayload:
		return left.nanoseconds == b.payload.(*datePayload).nanoseconds
	case *stringPayload:
		return bytes.Equal(left.bytes, b.payload.(*stringPayload).bytes)
	case *binaryPayload:
		return bytes.Equal(left.bytes, b.payload.(*binaryPayload).bytes)
	case *uuidPayload:
		return left.id == b.payload.(*uuidPayload).id
	case *errorPayload:
		return left.description == b.payload.(*errorPayload).description
	case *handlePayload:
		right := b.payload.(*handlePayload)
		return left.kind == right.kind && left.capability.Identity() == right.capability.Identity()
	case *dictionaryPayload:
		right := b.payload.(*dictionaryPayload)
		if len(left.entries) != len(right.entries) {
			return false
		}
		for _, entry := range left.entries {
			position, exists := right.index[entry.key]
			if !exists || !Equal(entry.value, right.entries[position].value) {
				return false
			}
		}
		return true
	case *arrayPayload:
		right := b.payload.(*arrayPayload)
		if len(left.elements) != len(right.elements) {
			return false
		}
		for i := range left.elements {
			if !Equal(left.elements[i], right.elements[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Equal reports whether v and other are equal. See the package-level
// Equal for the rules.
func (v *Value) Equal(other *Value) bool { return Equal(v, other) }

// Hash returns a hash consistent with Equal: equal values hash
// identically. Container hashes XOR-combine their children, so a
// dictionary's hash does not depend on insertion order. Hashing nil
// faults.
func (v *Value) Hash() uint64 {
	if v == nil {
		faultf("Hash", "nil value")
	}

	var scalar [8]byte
	switch p := v.payload.(type) {
	case nullPayload:
		return leafHash(v.typ, nil)
	case *boolPayload:
		if p.value {
			scalar[0] = 1
		}
		return leafHash(v.typ, scalar[:1])
	case *int64Payload:
		binary.LittleEndian.PutUint64(scalar[:], uint64(p.value))
		return leafHash(v.typ, scalar[:])
	case *uint64Payload:
		binary.LittleEndian.PutUint64(scalar[:], p.value)
		return leafHash(v.typ, scalar[:])
	case *doublePayload:
		binary.LittleEndian.PutUint64(scalar[:], normalizeDouble(p.value))
		return leafHash(v.typ, scalar[:])
	case *datePayload:
		binary.LittleEndian.PutUint64(scalar[:], uint64(p.nanoseconds))
		return leafHash(v.typ, scalar[:])
	case *stringPayload:
		return leafHash(v.typ, p.bytes)
	case *binaryPayload:
		return leafHash(v.typ, p.bytes)
	case *uuidPayload:
		return leafHash(v.typ, p.id[:])
	case *errorPayload:
		return leafHash(v.typ, []byte(p.description))
	case *handlePayload:
		return leafHash(v.typ, append([]byte{byte(p.kind)}, p.capability.Identity()...))
	case *dictionaryPayload:
		combined := leafHash(v.typ, nil)
		for _, entry := range p.entries {
			binary.LittleEndian.PutUint64(scalar[:], entry.value.Hash())
			combined ^= leafHash(TypeString, append([]byte(entry.key), scalar[:]...))
		}
		return combined
	case *arrayPayload:
		combined := leafHash(v.typ, nil)
		for _, element := range p.elements {
			combined ^= element.Hash()
		}
		return combined
	default:
		faultf("Hash", "unhashable %s value", v.typ)
		return 0
	}
}

func leafHash(t Type, data []byte) uint64 {
	hasher := blake3.New()
	_, _ = hasher.Write([]byte{byte(t)})
	_, _ = hasher.Write(data)
	return binary.LittleEndian.Uint64(hasher.Sum(nil)[:8])
}
