// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Describe returns a multi-line, human-readable rendering of the tree
// rooted at v, one node per line with tab indentation:
//
//	<dictionary> {
//		"name" => <string> "alice"
//		"tags" => <array> [
//			0 => <int64> 7
//		]
//	}
func (v *Value) Describe() string {
	var builder strings.Builder
	describeInto(&builder, v, 0)
	return builder.String()
}

// String returns a compact one-line rendering of v.
func (v *Value) String() string {
	var builder strings.Builder
	compactInto(&builder, v)
	return builder.String()
}

func describeInto(builder *strings.Builder, v *Value, depth int) {
	if v == nil {
		builder.WriteString("<nil>")
		return
	}
	builder.WriteString("<")
	builder.WriteString(v.typ.String())
	builder.WriteString(">")

	switch p := v.payload.(type) {
	case *dictionaryPayload:
		builder.WriteString(" {\n")
		for _, entry := range p.entries {
			indent(builder, depth+1)
			builder.WriteString(strconv.Quote(entry.key))
			builder.WriteString(" => ")
			describeInto(builder, entry.value, depth+1)
			builder.WriteString("\n")
		}
		indent(builder, depth)
		builder.WriteString("}")
	case *arrayPayload:
		builder.WriteString(" [\n")
		for i, element := range p.elements {
			indent(builder, depth+1)
			builder.WriteString(strconv.Itoa(i))
			builder.WriteString(" => ")
			describeInto(builder, element, depth+1)
			builder.WriteString("\n")
		}
		indent(builder, depth)
		builder.WriteString("]")
	case nullPayload:
	default:
		builder.WriteString(" ")
		builder.WriteString(scalarText(v))
	}
}

func compactInto(builder *strings.Builder, v *Value) {
	if v == nil {
		builder.WriteString("<nil>")
		return
	}
	switch p := v.payload.(type) {
	case *dictionaryPayload:
		builder.WriteString("{")
		for i, entry := range p.entries {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(strconv.Quote(entry.key))
			builder.WriteString(": ")
			compactInto(builder, entry.value)
		}
		builder.WriteString("}")
	case *arrayPayload:
		builder.WriteString("[")
		for i, element := range p.elements {
			if i > 0 {
				builder.WriteString(", ")
			}
			compactInto(builder, element)
		}
		builder.WriteString("]")
	case nullPayload:
		builder.WriteString("null")
	default:
		builder.WriteString(scalarText(v))
	}
}

func scalarText(v *Value) string {
	switch p := v.payload.(type) {
	case *boolPayload:
		return strconv.FormatBool(p.value)
	case *int64Payload:
		return strconv.FormatInt(p.value, 10)
	case *uint64Payload:
		return strconv.FormatUint(p.value, 10)
	case *doublePayload:
		return strconv.FormatFloat(p.value, 'g', -1, 64)
	case *datePayload:
		return time.Unix(0, p.nanoseconds).UTC().Format(time.RFC3339Nano)
	case *stringPayload:
		return strconv.Quote(string(p.bytes))
	case *binaryPayload:
		return "0x" + hex.EncodeToString(p.bytes)
	case *uuidPayload:
		return p.id.String()
	case *errorPayload:
		return strconv.Quote(p.description)
	case *handlePayload:
		return p.kind.String() + " " + p.capability.Identity()
	default:
		return ""
	}
}

func indent(builder *strings.Builder, depth int) {
	for range depth {
		builder.WriteByte('\t')
	}
}

// LogValue renders v for log/slog. Scalars become typed attributes and
// containers become groups, so a message logs as structured fields.
func (v *Value) LogValue() slog.Value {
	if v == nil {
		return slog.StringValue("<nil>")
	}
	switch p := v.payload.(type) {
	case nullPayload:
		return slog.StringValue("null")
	case *boolPayload:
		return slog.BoolValue(p.value)
	case *int64Payload:
		return slog.Int64Value(p.value)
	case *uint64Payload:
		return slog.Uint64Value(p.value)
	case *doublePayload:
		return slog.Float64Value(p.value)
	case *datePayload:
		return slog.TimeValue(time.Unix(0, p.nanoseconds).UTC())
	case *dictionaryPayload:
		attributes := make([]slog.Attr, 0, len(p.entries))
		for _, entry := range p.entries {
			attributes = append(attributes, slog.Any(entry.key, entry.value))
		}
		return slog.GroupValue(attributes...)
	case *arrayPayload:
		attributes := make([]slog.Attr, 0, len(p.elements))
		for i, element := range p.elements {
			attributes = append(attributes, slog.Any(strconv.Itoa(i), element))
		}
		return slog.GroupValue(attributes...)
	default:
		return slog.StringValue(scalarText(v))
	}
}
