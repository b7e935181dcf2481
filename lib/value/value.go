// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/objex/lib/clock"
)

// Value is one node of an object tree. The zero Value is not usable;
// obtain values from the New* constructors.
type Value struct {
	typ    Type
	static bool
	refs   atomic.Int32

	payload payload

	// received is set by the connection layer on messages that arrived
	// from a transport.
	received *received
}

type received struct {
	credentials Credentials
}

// payload is the variant data of a Value. The set of implementations
// is closed: one per Type.
type payload interface {
	variant() Type
}

type (
	nullPayload   struct{}
	boolPayload   struct{ value bool }
	int64Payload  struct{ value int64 }
	uint64Payload struct{ value uint64 }
	doublePayload struct{ value float64 }
	datePayload   struct{ nanoseconds int64 }
	stringPayload struct{ bytes []byte }
	binaryPayload struct{ bytes []byte }
	uuidPayload   struct{ id uuid.UUID }
	errorPayload  struct{ description string }
	handlePayload struct {
		kind       HandleKind
		capability Capability
	}
)

func (nullPayload) variant() Type    { return TypeNull }
func (*boolPayload) variant() Type   { return TypeBool }
func (*int64Payload) variant() Type  { return TypeInt64 }
func (*uint64Payload) variant() Type { return TypeUInt64 }
func (*doublePayload) variant() Type { return TypeDouble }
func (*datePayload) variant() Type   { return TypeDate }
func (*stringPayload) variant() Type { return TypeString }
func (*binaryPayload) variant() Type { return TypeBinary }
func (*uuidPayload) variant() Type   { return TypeUUID }
func (*errorPayload) variant() Type  { return TypeError }
func (*handlePayload) variant() Type { return TypeHandle }

func newValue(p payload) *Value {
	v := &Value{typ: p.variant(), payload: p}
	v.refs.Store(1)
	return v
}

func newStatic(p payload) *Value {
	return &Value{typ: p.variant(), static: true, payload: p}
}

// Static singletons. Retain and Release on these are no-ops.
var (
	Null  = newStatic(nullPayload{})
	True  = newStatic(&boolPayload{value: true})
	False = newStatic(&boolPayload{value: false})
)

// Fault is the panic value raised on programmer misuse.
type Fault struct {
	Op      string
	Message string
}

func (f *Fault) Error() string {
	return "objex: " + f.Op + ": " + f.Message
}

func faultf(op, format string, args ...any) {
	f := &Fault{Op: op, Message: fmt.Sprintf(format, args...)}
	slog.Default().Error("objex api misuse", "op", f.Op, "error", f.Message)
	panic(f)
}

// RaiseFault raises a misuse fault on behalf of a package built on top of
// this one, so every misuse in the stack is reported the same way.
func RaiseFault(op, format string, args ...any) {
	faultf(op, format, args...)
}

// NewNull returns the static null value.
func NewNull() *Value { return Null }

// NewBool returns the static True or False.
func NewBool(b bool) *Value {
	if b {
		return True
	}
	return False
}

// NewBoolDistinct returns a mutable bool that can be changed with
// SetBool, unlike the static values returned by NewBool.
func NewBoolDistinct(b bool) *Value { return newValue(&boolPayload{value: b}) }

func NewInt64(n int64) *Value { return newValue(&int64Payload{value: n}) }

func NewUInt64(n uint64) *Value { return newValue(&uint64Payload{value: n}) }

func NewDouble(f float64) *Value { return newValue(&doublePayload{value: f}) }

// NewDate returns a date of nanoseconds since the Unix epoch.
func NewDate(nanoseconds int64) *Value { return newValue(&datePayload{nanoseconds: nanoseconds}) }

// NewDateFromTime returns a date for t.
func NewDateFromTime(t time.Time) *Value { return NewDate(t.UnixNano()) }

// NewDateNow returns a date for the current time of c.
func NewDateNow(c clock.Clock) *Value { return NewDateFromTime(c.Now()) }

// NewString returns a string value holding a copy of s. The bytes
// need not be valid UTF-8 and may contain NUL.
func NewString(s string) *Value { return newValue(&stringPayload{bytes: []byte(s)}) }

// NewStringf returns a string built with fmt.Sprintf.
func NewStringf(format string, args ...any) *Value {
	return NewString(fmt.Sprintf(format, args...))
}

// NewStringBytes returns a string value holding a copy of b.
func NewStringBytes(b []byte) *Value {
	return newValue(&stringPayload{bytes: append([]byte{}, b...)})
}

// NewBinary returns a binary value holding a copy of b.
func NewBinary(b []byte) *Value {
	return newValue(&binaryPayload{bytes: append([]byte{}, b...)})
}

func NewUUID(id uuid.UUID) *Value { return newValue(&uuidPayload{id: id}) }

// NewRandomUUID returns a version 4 UUID value.
func NewRandomUUID() *Value { return NewUUID(uuid.New()) }

// NewHandle returns a handle owning capability. The handle closes the
// capability when it is finalized.
func NewHandle(kind HandleKind, capability Capability) *Value {
	if capability == nil {
		faultf("NewHandle", "nil capability")
	}
	switch kind {
	case HandleDescriptor, HandleEndpoint, HandleConnection:
	default:
		faultf("NewHandle", "invalid handle kind %d", kind)
	}
	return newValue(&handlePayload{kind: kind, capability: capability})
}

// Type returns the variant of v. A nil Value has TypeInvalid.
func (v *Value) Type() Type {
	if v == nil {
		return TypeInvalid
	}
	return v.typ
}

// Is reports whether v holds the given variant.
func (v *Value) Is(t Type) bool { return v.Type() == t }

// Static reports whether v is one of the immutable singletons.
func (v *Value) Static() bool { return v != nil && v.static }

// RefCount returns the current reference count. Static values report 0.
func (v *Value) RefCount() int32 {
	if v == nil {
		faultf("RefCount", "nil value")
	}
	if v.static {
		return 0
	}
	return v.refs.Load()
}

// Retain adds a reference and returns v.
func (v *Value) Retain() *Value {
	if v == nil {
		faultf("Retain", "nil value")
	}
	if v.static {
		return v
	}
	if v.refs.Add(1) <= 1 {
		faultf("Retain", "%s value retained after release", v.typ)
	}
	return v
}

// Release drops a reference. The last release finalizes v and its
// subtree. Releasing nil does nothing.
func (v *Value) Release() {
	if v == nil || v.static {
		return
	}
	if !v.drop() {
		return
	}
	finalize(v)
}

// drop decrements the count and reports whether it reached zero.
func (v *Value) drop() bool {
	if v.static {
		return false
	}
	remaining := v.refs.Add(-1)
	if remaining < 0 {
		faultf("Release", "%s value over-released", v.typ)
	}
	return remaining == 0
}

// finalize tears down a tree whose root has no references left. The
// traversal is iterative so that deep trees cannot exhaust the stack.
func finalize(root *Value) {
	pending := []*Value{root}
	for len(pending) > 0 {
		node := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		switch p := node.payload.(type) {
		case *dictionaryPayload:
			for _, entry := range p.entries {
				if entry.value.drop() {
					pending = append(pending, entry.value)
				}
			}
			p.entries = nil
			p.index = nil
		case *arrayPayload:
			for _, element := range p.elements {
				if element.drop() {
					pending = append(pending, element)
				}
			}
			p.elements = nil
		case *handlePayload:
			if err := p.capability.Close(); err != nil {
				slog.Default().Debug("closing handle capability",
					"kind", p.kind.String(), "identity", p.capability.Identity(), "error", err)
			}
		}
	}
}

func (v *Value) expect(op string, t Type) {
	if v == nil {
		faultf(op, "nil value, want %s", t)
	}
	if v.typ != t {
		faultf(op, "value is %s, want %s", v.typ, t)
	}
}

func (v *Value) expectMutable(op string, t Type) {
	v.expect(op, t)
	if v.static {
		faultf(op, "cannot modify static %s value", t)
	}
}

// Bool returns the value of a bool.
func (v *Value) Bool() bool {
	v.expect("Bool", TypeBool)
	return v.payload.(*boolPayload).value
}

// Int64 returns the value of an int64.
func (v *Value) Int64() int64 {
	v.expect("Int64", TypeInt64)
	return v.payload.(*int64Payload).value
}

// UInt64 returns the value of a uint64.
func (v *Value) UInt64() uint64 {
	v.expect("UInt64", TypeUInt64)
	return v.payload.(*uint64Payload).value
}

// Double returns the value of a double.
func (v *Value) Double() float64 {
	v.expect("Double", TypeDouble)
	return v.payload.(*doublePayload).value
}

// Date returns nanoseconds since the Unix epoch.
func (v *Value) Date() int64 {
	v.expect("Date", TypeDate)
	return v.payload.(*datePayload).nanoseconds
}

// Time returns a date as a time.Time in UTC.
func (v *Value) Time() time.Time {
	return time.Unix(0, v.Date()).UTC()
}

// StringValue returns the contents of a string.
func (v *Value) StringValue() string {
	v.expect("StringValue", TypeString)
	return string(v.payload.(*stringPayload).bytes)
}

// StringBytes returns the bytes of a string without copying. The
// caller must not modify them.
func (v *Value) StringBytes() []byte {
	v.expect("StringBytes", TypeString)
	return v.payload.(*stringPayload).bytes
}

// Bytes returns the contents of a binary value without copying. The
// caller must not modify them.
func (v *Value) Bytes() []byte {
	v.expect("Bytes", TypeBinary)
	return v.payload.(*binaryPayload).bytes
}

// Len returns the byte length of a string or binary value, or the
// number of children of a container.
func (v *Value) Len() int {
	switch p := v.payloadOrFault("Len").(type) {
	case *stringPayload:
		return len(p.bytes)
	case *binaryPayload:
		return len(p.bytes)
	case *dictionaryPayload:
		return len(p.entries)
	case *arrayPayload:
		return len(p.elements)
	default:
		faultf("Len", "%s value has no length", v.typ)
		return 0
	}
}

// UUID returns the value of a uuid.
func (v *Value) UUID() uuid.UUID {
	v.expect("UUID", TypeUUID)
	return v.payload.(*uuidPayload).id
}

// Handle returns the capability of a handle. The handle keeps
// ownership; callers that need an independent copy Duplicate it.
func (v *Value) Handle() Capability {
	v.expect("Handle", TypeHandle)
	return v.payload.(*handlePayload).capability
}

// HandleKind returns the kind of a handle.
func (v *Value) HandleKind() HandleKind {
	v.expect("HandleKind", TypeHandle)
	return v.payload.(*handlePayload).kind
}

// ErrorDescription returns the description of an error value.
func (v *Value) ErrorDescription() string {
	v.expect("ErrorDescription", TypeError)
	return v.payload.(*errorPayload).description
}

func (v *Value) payloadOrFault(op string) payload {
	if v == nil {
		faultf(op, "nil value")
	}
	return v.payload
}

// SetBool changes a bool created by NewBoolDistinct.
func (v *Value) SetBool(b bool) {
	v.expectMutable("SetBool", TypeBool)
	v.payload.(*boolPayload).value = b
}

func (v *Value) SetInt64(n int64) {
	v.expectMutable("SetInt64", TypeInt64)
	v.payload.(*int64Payload).value = n
}

func (v *Value) SetUInt64(n uint64) {
	v.expectMutable("SetUInt64", TypeUInt64)
	v.payload.(*uint64Payload).value = n
}

func (v *Value) SetDouble(f float64) {
	v.expectMutable("SetDouble", TypeDouble)
	v.payload.(*doublePayload).value = f
}

func (v *Value) SetDate(nanoseconds int64) {
	v.expectMutable("SetDate", TypeDate)
	v.payload.(*datePayload).nanoseconds = nanoseconds
}

func (v *Value) SetString(s string) {
	v.expectMutable("SetString", TypeString)
	v.payload.(*stringPayload).bytes = []byte(s)
}

// SetBytes replaces the contents of a binary value with a copy of b.
func (v *Value) SetBytes(b []byte) {
	v.expectMutable("SetBytes", TypeBinary)
	v.payload.(*binaryPayload).bytes = append([]byte{}, b...)
}

// MarkReceived attaches sender credentials to a message that arrived
// from a transport.
func (v *Value) MarkReceived(credentials Credentials) {
	if v == nil || v.static {
		faultf("MarkReceived", "cannot mark a static or nil value")
	}
	v.received = &received{credentials: credentials}
}

// FromWire reports whether v was received from a transport.
func (v *Value) FromWire() bool { return v != nil && v.received != nil }

// Credentials returns the sender identity of a received message.
func (v *Value) Credentials() (Credentials, bool) {
	if !v.FromWire() {
		return Credentials{}, false
	}
	return v.received.credentials, true
}

// IsReservedKey reports whether key is in the namespace reserved for
// transport metadata.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// normalizeDouble maps -0 to +0 and every NaN to one bit pattern, so
// that values equal under Equal hash identically.
func normalizeDouble(f float64) uint64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return 0x7ff8000000000001
	default:
		return math.Float64bits(f)
	}
}
