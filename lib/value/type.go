// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import "fmt"

// Type identifies the variant held by a Value.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeNull
	TypeBool
	TypeInt64
	TypeUInt64
	TypeDouble
	TypeDate
	TypeString
	TypeBinary
	TypeUUID
	TypeHandle
	TypeDictionary
	TypeArray
	TypeError
)

var typeNames = [...]string{
	TypeInvalid:    "invalid",
	TypeNull:       "null",
	TypeBool:       "bool",
	TypeInt64:      "int64",
	TypeUInt64:     "uint64",
	TypeDouble:     "double",
	TypeDate:       "date",
	TypeString:     "string",
	TypeBinary:     "data",
	TypeUUID:       "uuid",
	TypeHandle:     "handle",
	TypeDictionary: "dictionary",
	TypeArray:      "array",
	TypeError:      "error",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// IsContainer reports whether values of this type hold children.
func (t Type) IsContainer() bool {
	return t == TypeDictionary || t == TypeArray
}

// HandleKind distinguishes the capabilities a handle Value can carry.
type HandleKind uint8

const (
	// HandleDescriptor is an operating system file descriptor.
	HandleDescriptor HandleKind = iota + 1

	// HandleEndpoint names a message destination, such as the reply
	// address of a received request.
	HandleEndpoint

	// HandleConnection is a transferable connection capability.
	HandleConnection
)

func (k HandleKind) String() string {
	switch k {
	case HandleDescriptor:
		return "descriptor"
	case HandleEndpoint:
		return "endpoint"
	case HandleConnection:
		return "connection"
	default:
		return fmt.Sprintf("handle-kind(%d)", uint8(k))
	}
}
