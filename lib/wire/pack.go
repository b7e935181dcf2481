// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bureau-foundation/objex/lib/value"
)

// Message is a packed value tree: the bytes and the capabilities that
// travel beside them. Handle entries in Bytes index into Handles.
type Message struct {
	Bytes   []byte
	Handles []value.Capability
}

// Close releases every capability in the message. Transports call it
// once the capabilities have been handed to the kernel or the peer.
func (m *Message) Close() {
	for _, capability := range m.Handles {
		_ = capability.Close()
	}
	m.Handles = nil
}

// cursor walks the children of one container. The root dictionary may
// carry a key filter.
type cursor struct {
	container *value.Value
	next      int
	keep      func(key string) bool
}

// advance returns the next child to encode, skipping filtered keys.
func (c *cursor) advance() (string, *value.Value, bool) {
	for c.next < c.container.Count() {
		position := c.next
		c.next++
		if c.container.Is(value.TypeArray) {
			return "", c.container.Index(position), true
		}
		key, child := c.container.EntryAt(position)
		if c.keep != nil && !c.keep(key) {
			continue
		}
		return key, child, true
	}
	return "", nil, false
}

// layout holds the payload size and handle count of every container,
// indexed in the order containers are first reached.
type layout struct {
	payload []uint64
	handles []uint64
}

func checkRoot(op string, root *value.Value) {
	if !root.Type().IsContainer() {
		value.RaiseFault(op, "root must be a dictionary or array, got %s", root.Type())
	}
}

// Size returns the packed length of root and the number of handles
// Pack would duplicate.
func Size(root *value.Value, opts ...Option) (int, int) {
	checkRoot("wire.Size", root)
	configured := buildOptions(opts)
	measured := measure(root, configured.keep)
	return HeaderSize + int(measured.payload[0]), int(measured.handles[0])
}

func measure(root *value.Value, keep func(string) bool) layout {
	type frame struct {
		cursor
		slot    int
		payload uint64
		handles uint64
	}

	measured := layout{payload: []uint64{0}, handles: []uint64{0}}
	stack := []frame{{cursor: cursor{container: root, keep: keep}}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		key, child, ok := top.advance()
		if !ok {
			finished := *top
			stack = stack[:len(stack)-1]
			measured.payload[finished.slot] = finished.payload
			measured.handles[finished.slot] = finished.handles
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				parent.payload += HeaderSize + finished.payload + popRecordSize
				parent.handles += finished.handles
			}
			continue
		}

		checkLength("name", len(key))
		top.payload += uint64(entryPrefixSize + len(key))
		switch child.Type() {
		case value.TypeDictionary, value.TypeArray:
			slot := len(measured.payload)
			measured.payload = append(measured.payload, 0)
			measured.handles = append(measured.handles, 0)
			stack = append(stack, frame{cursor: cursor{container: child}, slot: slot})
		case value.TypeHandle:
			top.payload += 8
			top.handles++
		default:
			top.payload += uint64(bodySize(child))
		}
	}
	return measured
}

func bodySize(v *value.Value) int {
	switch tagFor(v) {
	case tagNull:
		return 0
	case tagBool:
		return 1
	case tagString, tagBinary:
		checkLength(v.Type().String(), v.Len())
		return 4 + v.Len()
	case tagUUID:
		return 4 + 16
	default:
		return 8
	}
}

func checkLength(what string, length int) {
	if uint64(length) > math.MaxUint32 {
		value.RaiseFault("wire.Pack", "%s of %d bytes exceeds the u32 length field", what, length)
	}
}

// Pack encodes root, which must be a dictionary or array. Every handle
// in the tree is duplicated into the returned Message, so the caller
// keeps ownership of the tree. Packing an error value faults.
func Pack(root *value.Value, opts ...Option) (Message, error) {
	checkRoot("wire.Pack", root)
	configured := buildOptions(opts)
	order := configured.order
	var flags byte
	if isBigEndian(order) {
		flags |= FlagBigEndian
	}

	measured := measure(root, configured.keep)
	buffer := make([]byte, HeaderSize+measured.payload[0])
	encodeHeader(buffer, order, flags, root.Type(), measured.handles[0], measured.payload[0])
	offset := HeaderSize

	message := Message{Handles: make([]value.Capability, 0, measured.handles[0])}
	nextSlot := 1
	stack := []cursor{{container: root, keep: configured.keep}}
	for len(stack) > 0 {
		key, child, ok := stack[len(stack)-1].advance()
		if !ok {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				buffer[offset] = byte(tagPop)
				order.PutUint32(buffer[offset+1:], 0)
				offset += popRecordSize
			}
			continue
		}

		buffer[offset] = byte(tagFor(child))
		order.PutUint32(buffer[offset+1:], uint32(len(key)))
		offset += entryPrefixSize
		offset += copy(buffer[offset:], key)

		switch child.Type() {
		case value.TypeNull:
		case value.TypeBool:
			if child.Bool() {
				buffer[offset] = 1
			}
			offset++
		case value.TypeInt64:
			order.PutUint64(buffer[offset:], uint64(child.Int64()))
			offset += 8
		case value.TypeUInt64:
			order.PutUint64(buffer[offset:], child.UInt64())
			offset += 8
		case value.TypeDouble:
			order.PutUint64(buffer[offset:], math.Float64bits(child.Double()))
			offset += 8
		case value.TypeDate:
			order.PutUint64(buffer[offset:], uint64(child.Date()))
			offset += 8
		case value.TypeString:
			offset = putBytes(buffer, offset, order, child.StringBytes())
		case value.TypeBinary:
			offset = putBytes(buffer, offset, order, child.Bytes())
		case value.TypeUUID:
			id := child.UUID()
			offset = putBytes(buffer, offset, order, id[:])
		case value.TypeHandle:
			duplicate, err := child.Handle().Duplicate()
			if err != nil {
				message.Close()
				return Message{}, fmt.Errorf("duplicating %s handle %s for packing: %w",
					child.HandleKind(), child.Handle().Identity(), err)
			}
			order.PutUint64(buffer[offset:], uint64(len(message.Handles)))
			message.Handles = append(message.Handles, duplicate)
			offset += 8
		case value.TypeDictionary, value.TypeArray:
			slot := nextSlot
			nextSlot++
			encodeHeader(buffer[offset:], order, flags, child.Type(), measured.handles[slot], measured.payload[slot])
			offset += HeaderSize
			stack = append(stack, cursor{container: child})
		}
	}

	message.Bytes = buffer[:offset]
	return message, nil
}

func putBytes(buffer []byte, offset int, order binary.ByteOrder, data []byte) int {
	order.PutUint32(buffer[offset:], uint32(len(data)))
	offset += 4
	return offset + copy(buffer[offset:], data)
}
