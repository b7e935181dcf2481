// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/bureau-foundation/objex/lib/value"
)

// Unpack rebuilds the tree packed in data. It takes ownership of
// handles: capabilities referenced by the tree belong to the returned
// Value, and any left unreferenced are closed. On failure Unpack
// returns a nil Value, releases everything it built, and closes every
// capability.
//
// Entries under reserved keys are kept; the connection layer
// overwrites them with the metadata it trusts.
func Unpack(data []byte, handles []value.Capability, opts ...Option) (*value.Value, error) {
	configured := buildOptions(opts)
	state := &decoder{
		data:     data,
		handles:  handles,
		used:     make([]bool, len(handles)),
		maxDepth: configured.maxDepth,
	}
	root, err := state.decode()
	for index, capability := range handles {
		if !state.used[index] {
			_ = capability.Close()
		}
	}
	if err != nil {
		return nil, err
	}
	return root, nil
}

type decoder struct {
	data     []byte
	handles  []value.Capability
	used     []bool
	maxDepth int

	order  binary.ByteOrder
	flags  byte
	offset int
}

// openContainer is one level of the explicit decode stack.
type openContainer struct {
	container *value.Value
	end       int

	declaredHandles uint64
	seenHandles     uint64
}

func (d *decoder) decode() (*value.Value, error) {
	if len(d.data) < HeaderSize {
		return nil, newError(ErrTruncated, 0, "%d bytes, need %d for a header", len(d.data), HeaderSize)
	}
	order, err := orderFromFlags(d.data[2], 0)
	if err != nil {
		return nil, err
	}
	d.order = order
	d.flags = d.data[2]

	header, err := decodeHeader(d.data, 0, order)
	if err != nil {
		return nil, err
	}
	if header.PayloadSize != uint64(len(d.data)-HeaderSize) {
		return nil, newError(ErrSizeMismatch, 12, "header declares %d payload bytes, buffer holds %d",
			header.PayloadSize, len(d.data)-HeaderSize)
	}
	if header.HandleCount > uint64(len(d.handles)) {
		return nil, newError(ErrHandleCount, 4, "header declares %d handles, %d supplied",
			header.HandleCount, len(d.handles))
	}

	root := newContainer(header.Container)
	if err := d.decodeEntries(root, header.HandleCount); err != nil {
		root.Release()
		return nil, err
	}
	return root, nil
}

func newContainer(container value.Type) *value.Value {
	if container == value.TypeDictionary {
		return value.NewDictionary()
	}
	return value.NewArray()
}

// decodeEntries fills root from the bytes after its header. Every
// child it creates is inserted before anything else can fail, so
// releasing root releases the partial tree.
func (d *decoder) decodeEntries(root *value.Value, declaredHandles uint64) error {
	d.offset = HeaderSize
	stack := []openContainer{{container: root, end: len(d.data), declaredHandles: declaredHandles}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if d.offset == top.end {
			if top.seenHandles != top.declaredHandles {
				return newError(ErrHandleCount, d.offset, "%s declares %d handles, holds %d",
					top.container.Type(), top.declaredHandles, top.seenHandles)
			}
			finished := *top
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return nil
			}
			parent := &stack[len(stack)-1]
			if err := d.expectPop(parent.end); err != nil {
				return err
			}
			parent.seenHandles += finished.seenHandles
			continue
		}

		entryOffset := d.offset
		if err := d.need(entryPrefixSize, top.end); err != nil {
			return err
		}
		entryTag := tag(d.data[d.offset])
		nameLength := d.order.Uint32(d.data[d.offset+1:])
		d.offset += entryPrefixSize
		if entryTag == tagPop {
			return newError(ErrStructure, entryOffset, "pop record inside a container's declared size")
		}
		if err := d.need(uint64(nameLength), top.end); err != nil {
			return err
		}
		name := string(d.data[d.offset : d.offset+int(nameLength)])
		d.offset += int(nameLength)

		isArray := top.container.Is(value.TypeArray)
		if isArray && nameLength != 0 {
			return newError(ErrStructure, entryOffset, "array entry has name %q", name)
		}
		if !isArray && top.container.Has(name) {
			return newError(ErrStructure, entryOffset, "duplicate key %q", name)
		}

		if entryTag == tagDictionary || entryTag == tagArray {
			child, end, handles, err := d.openNested(entryTag, top.end, len(stack))
			if err != nil {
				return err
			}
			insert(top.container, name, child)
			stack = append(stack, openContainer{container: child, end: end, declaredHandles: handles})
			continue
		}

		child, err := d.decodeScalar(entryTag, entryOffset, top.end)
		if err != nil {
			return err
		}
		if child.Is(value.TypeHandle) {
			top.seenHandles++
		}
		insert(top.container, name, child)
	}
	return nil
}

func insert(container *value.Value, name string, child *value.Value) {
	switch {
	case container.Is(value.TypeArray):
		container.AppendMove(child)
	case value.IsReservedKey(name):
		container.MoveReserved(name, child)
	default:
		container.Move(name, child)
	}
}

func (d *decoder) need(length uint64, limit int) error {
	if length > uint64(limit-d.offset) {
		return newError(ErrTruncated, d.offset, "need %d bytes, %d remain in container", length, limit-d.offset)
	}
	return nil
}

func (d *decoder) expectPop(limit int) error {
	if err := d.need(popRecordSize, limit); err != nil {
		return err
	}
	if tag(d.data[d.offset]) != tagPop || d.order.Uint32(d.data[d.offset+1:]) != 0 {
		return newError(ErrStructure, d.offset, "nested container does not end at its declared size")
	}
	d.offset += popRecordSize
	return nil
}

func (d *decoder) openNested(entryTag tag, limit, depth int) (*value.Value, int, uint64, error) {
	headerOffset := d.offset
	if err := d.need(HeaderSize, limit); err != nil {
		return nil, 0, 0, err
	}
	if d.data[d.offset+2] != d.flags {
		return nil, 0, 0, newError(ErrBadFlags, d.offset+2, "nested flags %#02x differ from root flags %#02x",
			d.data[d.offset+2], d.flags)
	}
	header, err := decodeHeader(d.data, d.offset, d.order)
	if err != nil {
		return nil, 0, 0, err
	}
	wantContainer := value.TypeDictionary
	if entryTag == tagArray {
		wantContainer = value.TypeArray
	}
	if header.Container != wantContainer {
		return nil, 0, 0, newError(ErrStructure, headerOffset+3, "%s entry holds a %s header", wantContainer, header.Container)
	}
	d.offset += HeaderSize
	if err := d.need(header.PayloadSize, limit); err != nil {
		return nil, 0, 0, newError(ErrSizeMismatch, headerOffset+12, "nested size %d exceeds the enclosing container",
			header.PayloadSize)
	}
	if depth+1 > d.maxDepth {
		return nil, 0, 0, newError(ErrTooDeep, headerOffset, "depth %d exceeds limit %d", depth+1, d.maxDepth)
	}
	return newContainer(header.Container), d.offset + int(header.PayloadSize), header.HandleCount, nil
}

func (d *decoder) decodeScalar(entryTag tag, entryOffset, limit int) (*value.Value, error) {
	switch entryTag {
	case tagNull:
		return value.Null, nil

	case tagBool:
		if err := d.need(1, limit); err != nil {
			return nil, err
		}
		b := d.data[d.offset]
		d.offset++
		if b > 1 {
			return nil, newError(ErrStructure, d.offset-1, "bool byte %d", b)
		}
		return value.NewBool(b == 1), nil

	case tagInt64, tagUInt64, tagDouble, tagDate:
		if err := d.need(8, limit); err != nil {
			return nil, err
		}
		bits := d.order.Uint64(d.data[d.offset:])
		d.offset += 8
		switch entryTag {
		case tagInt64:
			return value.NewInt64(int64(bits)), nil
		case tagUInt64:
			return value.NewUInt64(bits), nil
		case tagDouble:
			return value.NewDouble(math.Float64frombits(bits)), nil
		default:
			return value.NewDate(int64(bits)), nil
		}

	case tagString, tagBinary, tagUUID:
		if err := d.need(4, limit); err != nil {
			return nil, err
		}
		length := d.order.Uint32(d.data[d.offset:])
		d.offset += 4
		if err := d.need(uint64(length), limit); err != nil {
			return nil, err
		}
		body := d.data[d.offset : d.offset+int(length)]
		d.offset += int(length)
		switch entryTag {
		case tagString:
			return value.NewStringBytes(body), nil
		case tagBinary:
			return value.NewBinary(body), nil
		default:
			id, err := uuid.FromBytes(body)
			if err != nil {
				return nil, newError(ErrStructure, entryOffset, "uuid body of %d bytes", length)
			}
			return value.NewUUID(id), nil
		}

	case tagDescriptor, tagEndpoint, tagConnection:
		if err := d.need(8, limit); err != nil {
			return nil, err
		}
		index := d.order.Uint64(d.data[d.offset:])
		d.offset += 8
		if index >= uint64(len(d.handles)) {
			return nil, newError(ErrHandleIndex, d.offset-8, "index %d, %d handles supplied", index, len(d.handles))
		}
		if d.used[index] {
			return nil, newError(ErrHandleIndex, d.offset-8, "handle %d referenced twice", index)
		}
		d.used[index] = true
		kind := value.HandleDescriptor
		switch entryTag {
		case tagEndpoint:
			kind = value.HandleEndpoint
		case tagConnection:
			kind = value.HandleConnection
		}
		return value.NewHandle(kind, d.handles[index]), nil

	default:
		return nil, newError(ErrUnknownTag, entryOffset, "tag %#02x", byte(entryTag))
	}
}
