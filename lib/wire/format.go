// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bureau-foundation/objex/lib/value"
)

const (
	// Magic is the first byte of every container header.
	Magic byte = 0x6c

	// Version is the only header version this package reads or writes.
	Version byte = 1

	// HeaderSize is the encoded size of a container header.
	HeaderSize = 20

	// FlagBigEndian marks multi-byte fields as big-endian.
	FlagBigEndian byte = 1 << 0

	knownFlags = FlagBigEndian

	containerDictionary byte = 1
	containerArray      byte = 2

	// entryPrefixSize is the tag plus the name length, before the name.
	entryPrefixSize = 1 + 4

	// popRecordSize is a pop tag with an empty name.
	popRecordSize = entryPrefixSize
)

type tag byte

const (
	tagNull tag = iota + 1
	tagBool
	tagInt64
	tagUInt64
	tagDouble
	tagDate
	tagString
	tagBinary
	tagUUID
	tagDescriptor
	tagEndpoint
	tagConnection
	tagDictionary
	tagArray

	tagPop tag = 0xff
)

// Header is a decoded container header.
type Header struct {
	Flags       byte
	Container   value.Type
	HandleCount uint64
	PayloadSize uint64
}

// BigEndian reports whether the header's flags select big-endian.
func (h Header) BigEndian() bool { return h.Flags&FlagBigEndian != 0 }

// Sentinel kinds for decoding failures. Every error returned by Unpack
// is an *Error wrapping one of these, so callers match with errors.Is.
var (
	ErrBadMagic     = errors.New("bad magic")
	ErrBadVersion   = errors.New("unsupported version")
	ErrBadFlags     = errors.New("bad flags")
	ErrSizeMismatch = errors.New("payload size mismatch")
	ErrTruncated    = errors.New("truncated record")
	ErrHandleCount  = errors.New("handle count mismatch")
	ErrHandleIndex  = errors.New("handle index out of range")
	ErrUnknownTag   = errors.New("unknown tag")
	ErrStructure    = errors.New("malformed structure")
	ErrTooDeep      = errors.New("nesting too deep")
)

// Error describes a decoding failure at a byte offset.
type Error struct {
	Kind   error
	Offset int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("wire: %v at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("wire: %v at offset %d: %s", e.Kind, e.Offset, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, offset int, format string, args ...any) *Error {
	return &Error{Kind: kind, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// ReadHeader decodes the root container header of data without
// reading any entries.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, newError(ErrTruncated, 0, "%d bytes, need %d for a header", len(data), HeaderSize)
	}
	order, err := orderFromFlags(data[2], 0)
	if err != nil {
		return Header{}, err
	}
	return decodeHeader(data, 0, order)
}

func orderFromFlags(flags byte, offset int) (binary.ByteOrder, error) {
	if flags&^knownFlags != 0 {
		return nil, newError(ErrBadFlags, offset+2, "unknown flag bits %#02x", flags&^knownFlags)
	}
	if flags&FlagBigEndian != 0 {
		return binary.BigEndian, nil
	}
	return binary.LittleEndian, nil
}

func decodeHeader(data []byte, offset int, order binary.ByteOrder) (Header, error) {
	if data[offset] != Magic {
		return Header{}, newError(ErrBadMagic, offset, "got %#02x, want %#02x", data[offset], Magic)
	}
	if data[offset+1] != Version {
		return Header{}, newError(ErrBadVersion, offset+1, "got %d, want %d", data[offset+1], Version)
	}
	header := Header{
		Flags:       data[offset+2],
		HandleCount: order.Uint64(data[offset+4:]),
		PayloadSize: order.Uint64(data[offset+12:]),
	}
	switch data[offset+3] {
	case containerDictionary:
		header.Container = value.TypeDictionary
	case containerArray:
		header.Container = value.TypeArray
	default:
		return Header{}, newError(ErrStructure, offset+3, "container type %d", data[offset+3])
	}
	return header, nil
}

func encodeHeader(destination []byte, order binary.ByteOrder, flags byte, container value.Type, handles, payload uint64) {
	destination[0] = Magic
	destination[1] = Version
	destination[2] = flags
	if container == value.TypeDictionary {
		destination[3] = containerDictionary
	} else {
		destination[3] = containerArray
	}
	order.PutUint64(destination[4:], handles)
	order.PutUint64(destination[12:], payload)
}

func tagFor(v *value.Value) tag {
	switch v.Type() {
	case value.TypeNull:
		return tagNull
	case value.TypeBool:
		return tagBool
	case value.TypeInt64:
		return tagInt64
	case value.TypeUInt64:
		return tagUInt64
	case value.TypeDouble:
		return tagDouble
	case value.TypeDate:
		return tagDate
	case value.TypeString:
		return tagString
	case value.TypeBinary:
		return tagBinary
	case value.TypeUUID:
		return tagUUID
	case value.TypeHandle:
		switch v.HandleKind() {
		case value.HandleDescriptor:
			return tagDescriptor
		case value.HandleEndpoint:
			return tagEndpoint
		default:
			return tagConnection
		}
	case value.TypeDictionary:
		return tagDictionary
	case value.TypeArray:
		return tagArray
	default:
		value.RaiseFault("wire.Pack", "%s values cannot be packed", v.Type())
		return 0
	}
}
