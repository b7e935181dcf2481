// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"iter"
	"time"

	"github.com/google/uuid"
)

// ReservedPrefix starts every key reserved for transport metadata.
const ReservedPrefix = "objex$"

// Reserved keys attached to received messages by the connection layer.
const (
	// KeySequence holds the UInt64 sequence ID of the message.
	KeySequence = ReservedPrefix + "sequence"

	// KeyReplyTo holds an endpoint handle naming where a reply goes.
	KeyReplyTo = ReservedPrefix + "reply-to"

	// KeyExpectsReply is True when the sender is waiting for a reply.
	KeyExpectsReply = ReservedPrefix + "expects-reply"
)

type dictionaryEntry struct {
	key   string
	value *Value
}

type dictionaryPayload struct {
	entries []dictionaryEntry
	index   map[string]int
}

type arrayPayload struct {
	elements []*Value
}

func (*dictionaryPayload) variant() Type { return TypeDictionary }
func (*arrayPayload) variant() Type      { return TypeArray }

// NewDictionary returns an empty dictionary.
func NewDictionary() *Value {
	return newValue(&dictionaryPayload{index: make(map[string]int)})
}

// NewDictionaryFrom returns a dictionary with keys[i] mapped to
// values[i]. The dictionary retains each value. Later duplicates of a
// key replace earlier ones.
func NewDictionaryFrom(keys []string, values []*Value) *Value {
	if len(keys) != len(values) {
		faultf("NewDictionaryFrom", "%d keys but %d values", len(keys), len(values))
	}
	dictionary := NewDictionary()
	for i, key := range keys {
		dictionary.Set(key, values[i])
	}
	return dictionary
}

// NewArray returns an empty array.
func NewArray() *Value {
	return newValue(&arrayPayload{})
}

// NewArrayFrom returns an array holding values in order. The array
// retains each value.
func NewArrayFrom(values ...*Value) *Value {
	array := newValue(&arrayPayload{elements: make([]*Value, 0, len(values))})
	for _, element := range values {
		array.Append(element)
	}
	return array
}

func (v *Value) dictionary(op string) *dictionaryPayload {
	v.expect(op, TypeDictionary)
	return v.payload.(*dictionaryPayload)
}

func (v *Value) array(op string) *arrayPayload {
	v.expect(op, TypeArray)
	return v.payload.(*arrayPayload)
}

// checkChild faults when child cannot be stored in the container v:
// nil children, and children whose subtree already contains v.
func (v *Value) checkChild(op string, child *Value) {
	if child == nil {
		faultf(op, "nil child value")
	}
	if child.typ.IsContainer() && child.reaches(v) {
		faultf(op, "inserting %s would create a cycle", child.typ)
	}
}

// reaches reports whether target is v or a descendant of v.
func (v *Value) reaches(target *Value) bool {
	pending := []*Value{v}
	for len(pending) > 0 {
		node := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if node == target {
			return true
		}
		switch p := node.payload.(type) {
		case *dictionaryPayload:
			for _, entry := range p.entries {
				if entry.value.typ.IsContainer() {
					pending = append(pending, entry.value)
				}
			}
		case *arrayPayload:
			for _, element := range p.elements {
				if element.typ.IsContainer() {
					pending = append(pending, element)
				}
			}
		}
	}
	return false
}

// Set stores child under key, retaining it. An existing entry for key
// is replaced in place and its old value released.
func (v *Value) Set(key string, child *Value) {
	if IsReservedKey(key) {
		faultf("Set", "key %q uses the reserved prefix %q", key, ReservedPrefix)
	}
	v.checkChild("Set", child)
	v.store(key, child.Retain())
}

// Move stores child under key, taking over the caller's reference.
func (v *Value) Move(key string, child *Value) {
	if IsReservedKey(key) {
		faultf("Move", "key %q uses the reserved prefix %q", key, ReservedPrefix)
	}
	v.checkChild("Move", child)
	v.store(key, child)
}

// MoveReserved stores child under a reserved key, taking over the
// caller's reference. It exists for the codec and connection layer,
// which carry transport metadata in reserved keys; it faults on keys
// outside the reserved namespace.
func (v *Value) MoveReserved(key string, child *Value) {
	if !IsReservedKey(key) {
		faultf("MoveReserved", "key %q is not reserved", key)
	}
	v.checkChild("MoveReserved", child)
	v.store(key, child)
}

func (v *Value) store(key string, child *Value) {
	dictionary := v.dictionary("Set")
	if position, exists := dictionary.index[key]; exists {
		old := dictionary.entries[position].value
		dictionary.entries[position].value = child
		old.Release()
		return
	}
	dictionary.index[key] = len(dictionary.entries)
	dictionary.entries = append(dictionary.entries, dictionaryEntry{key: key, value: child})
}

// PutNull stores null under key.
func (v *Value) PutNull(key string) { v.Move(key, Null) }

// PutBool stores a bool under key.
func (v *Value) PutBool(key string, b bool) { v.Move(key, NewBool(b)) }

// PutInt64 stores an int64 under key.
func (v *Value) PutInt64(key string, n int64) { v.Move(key, NewInt64(n)) }

// PutUInt64 stores a uint64 under key.
func (v *Value) PutUInt64(key string, n uint64) { v.Move(key, NewUInt64(n)) }

// PutDouble stores a double under key.
func (v *Value) PutDouble(key string, f float64) { v.Move(key, NewDouble(f)) }

// PutDate stores a date under key.
func (v *Value) PutDate(key string, t time.Time) { v.Move(key, NewDateFromTime(t)) }

// PutString stores a string under key.
func (v *Value) PutString(key string, s string) { v.Move(key, NewString(s)) }

// PutBinary stores a copy of b under key.
func (v *Value) PutBinary(key string, b []byte) { v.Move(key, NewBinary(b)) }

// PutUUID stores a uuid under key.
func (v *Value) PutUUID(key string, id uuid.UUID) { v.Move(key, NewUUID(id)) }

// Get returns the value stored under key, or nil. The dictionary keeps
// ownership; Retain the result to hold it beyond the dictionary.
func (v *Value) Get(key string) *Value {
	dictionary := v.dictionary("Get")
	position, exists := dictionary.index[key]
	if !exists {
		return nil
	}
	return dictionary.entries[position].value
}

// Has reports whether key is present.
func (v *Value) Has(key string) bool {
	_, exists := v.dictionary("Has").index[key]
	return exists
}

// GetBool returns the bool under key, or false when the key is absent
// or holds another type. The typed getters below behave the same way.
func (v *Value) GetBool(key string) bool {
	if child := v.Get(key); child.Is(TypeBool) {
		return child.Bool()
	}
	return false
}

func (v *Value) GetInt64(key string) int64 {
	if child := v.Get(key); child.Is(TypeInt64) {
		return child.Int64()
	}
	return 0
}

func (v *Value) GetUInt64(key string) uint64 {
	if child := v.Get(key); child.Is(TypeUInt64) {
		return child.UInt64()
	}
	return 0
}

func (v *Value) GetDouble(key string) float64 {
	if child := v.Get(key); child.Is(TypeDouble) {
		return child.Double()
	}
	return 0
}

func (v *Value) GetString(key string) string {
	if child := v.Get(key); child.Is(TypeString) {
		return child.StringValue()
	}
	return ""
}

// GetBinary returns the bytes under key without copying, or nil.
func (v *Value) GetBinary(key string) []byte {
	if child := v.Get(key); child.Is(TypeBinary) {
		return child.Bytes()
	}
	return nil
}

func (v *Value) GetUUID(key string) uuid.UUID {
	if child := v.Get(key); child.Is(TypeUUID) {
		return child.UUID()
	}
	return uuid.Nil
}

// Delete removes key and releases its value. It reports whether the
// key was present. Remaining entries keep their relative order.
func (v *Value) Delete(key string) bool {
	dictionary := v.dictionary("Delete")
	position, exists := dictionary.index[key]
	if !exists {
		return false
	}
	removed := dictionary.entries[position].value
	dictionary.entries = append(dictionary.entries[:position], dictionary.entries[position+1:]...)
	delete(dictionary.index, key)
	for i := position; i < len(dictionary.entries); i++ {
		dictionary.index[dictionary.entries[i].key] = i
	}
	removed.Release()
	return true
}

// Count returns the number of entries of a dictionary or elements of
// an array.
func (v *Value) Count() int {
	switch v.Type() {
	case TypeDictionary:
		return len(v.payload.(*dictionaryPayload).entries)
	case TypeArray:
		return len(v.payload.(*arrayPayload).elements)
	default:
		faultf("Count", "%s value is not a container", v.Type())
		return 0
	}
}

// Keys returns the keys of a dictionary in insertion order.
func (v *Value) Keys() []string {
	dictionary := v.dictionary("Keys")
	keys := make([]string, len(dictionary.entries))
	for i, entry := range dictionary.entries {
		keys[i] = entry.key
	}
	return keys
}

// EntryAt returns the key and value at position i in insertion order.
// The dictionary keeps ownership of the value.
func (v *Value) EntryAt(i int) (string, *Value) {
	dictionary := v.dictionary("EntryAt")
	if i < 0 || i >= len(dictionary.entries) {
		faultf("EntryAt", "index %d out of range [0,%d)", i, len(dictionary.entries))
	}
	entry := dictionary.entries[i]
	return entry.key, entry.value
}

// Entries iterates a dictionary in insertion order. The dictionary
// must not be modified during iteration.
func (v *Value) Entries() iter.Seq2[string, *Value] {
	dictionary := v.dictionary("Entries")
	return func(yield func(string, *Value) bool) {
		for _, entry := range dictionary.entries {
			if !yield(entry.key, entry.value) {
				return
			}
		}
	}
}

// ApplyDictionary calls fn for each entry in insertion order until fn
// returns false. It reports whether every entry was visited.
func (v *Value) ApplyDictionary(fn func(key string, child *Value) bool) bool {
	for key, child := range v.Entries() {
		if !fn(key, child) {
			return false
		}
	}
	return true
}

// Append adds child to the end of an array, retaining it.
func (v *Value) Append(child *Value) {
	v.checkChild("Append", child)
	array := v.array("Append")
	array.elements = append(array.elements, child.Retain())
}

// AppendMove adds child to the end of an array, taking over the
// caller's reference.
func (v *Value) AppendMove(child *Value) {
	v.checkChild("AppendMove", child)
	array := v.array("AppendMove")
	array.elements = append(array.elements, child)
}

// Index returns element i of an array. The array keeps ownership.
func (v *Value) Index(i int) *Value {
	array := v.array("Index")
	if i < 0 || i >= len(array.elements) {
		faultf("Index", "index %d out of range [0,%d)", i, len(array.elements))
	}
	return array.elements[i]
}

// SetIndex replaces element i of an array with child, retaining child
// and releasing the old element.
func (v *Value) SetIndex(i int, child *Value) {
	v.checkChild("SetIndex", child)
	array := v.array("SetIndex")
	if i < 0 || i >= len(array.elements) {
		faultf("SetIndex", "index %d out of range [0,%d)", i, len(array.elements))
	}
	old := array.elements[i]
	array.elements[i] = child.Retain()
	old.Release()
}

// Values iterates an array in order.
func (v *Value) Values() iter.Seq2[int, *Value] {
	array := v.array("Values")
	return func(yield func(int, *Value) bool) {
		for i, element := range array.elements {
			if !yield(i, element) {
				return
			}
		}
	}
}

// ApplyArray calls fn for each element in order until fn returns
// false. It reports whether every element was visited.
func (v *Value) ApplyArray(fn func(index int, child *Value) bool) bool {
	for i, child := range v.Values() {
		if !fn(i, child) {
			return false
		}
	}
	return true
}
