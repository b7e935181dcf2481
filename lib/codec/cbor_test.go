// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/objex/lib/value"
)

// sampleMessage uses cbor struct tags, the convention for types that
// are only ever CBOR.
type sampleMessage struct {
	Action string `cbor:"action"`
	Count  int    `cbor:"count"`
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"b": 2, "a": 1, "c": "three"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(map[string]any{"c": "three", "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("map key order changed the encoding:\n%x\n%x", first, second)
	}

	var decoded sampleMessage
	data, _ := Marshal(sampleMessage{Action: "dump", Count: 3})
	if err := Unmarshal(data, &decoded); err != nil || decoded.Action != "dump" || decoded.Count != 3 {
		t.Errorf("struct round trip = %+v, %v", decoded, err)
	}
}

func sampleTree() *value.Value {
	root := value.NewDictionary()
	root.PutString("name", "alice")
	root.PutInt64("negative", -7)
	root.PutInt64("positive", 7)
	root.PutUInt64("huge", math.MaxUint64)
	root.PutUInt64("small unsigned", 3)
	root.PutDouble("ratio", 0.25)
	root.PutBool("ok", true)
	root.PutNull("nothing")
	root.PutBinary("blob", []byte{0, 1, 2})
	root.PutUUID("id", uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	root.PutDate("when", time.Date(1969, 7, 20, 20, 17, 40, 123, time.UTC))
	list := value.NewArray()
	list.AppendMove(value.NewString("x"))
	nested := value.NewDictionary()
	nested.PutInt64("depth", 2)
	list.AppendMove(nested)
	list.AppendMove(value.NewArray())
	root.Move("list", list)
	return root
}

func TestValueRoundTrip(t *testing.T) {
	original := sampleTree()
	defer original.Release()

	data, err := MarshalValue(original)
	if err != nil {
		t.Fatalf("MarshalValue: %v", err)
	}
	decoded, err := UnmarshalValue(data)
	if err != nil {
		t.Fatalf("UnmarshalValue: %v", err)
	}
	defer decoded.Release()

	if !value.Equal(original, decoded) {
		t.Fatalf("round trip changed the tree:\n%s\n%s", original.Describe(), decoded.Describe())
	}
	if decoded.Get("small unsigned").Type() != value.TypeUInt64 || decoded.Get("positive").Type() != value.TypeInt64 {
		t.Error("int64 and uint64 were not kept apart")
	}

	again, _ := MarshalValue(decoded)
	if !bytes.Equal(data, again) {
		t.Error("encoding is not deterministic across a round trip")
	}
}

func TestDiagnoseValue(t *testing.T) {
	tree := sampleTree()
	defer tree.Release()
	data, err := MarshalValue(tree)
	if err != nil {
		t.Fatalf("MarshalValue: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	for _, want := range []string{`"name": "alice"`, `37(h'6ba7b8109dad11d180b400c04fd430c8')`, `"depth": 2`} {
		if !strings.Contains(notation, want) {
			t.Errorf("notation lacks %s:\n%s", want, notation)
		}
	}
}

func TestHandlesExportButDoNotImport(t *testing.T) {
	tree := value.NewArray()
	defer tree.Release()
	tree.AppendMove(value.NewHandle(value.HandleEndpoint, identityOnly("endpoint:memory:svc#1")))
	tree.Append(value.ErrorConnectionInterrupted)

	data, err := MarshalValue(tree)
	if err != nil {
		t.Fatalf("MarshalValue: %v", err)
	}
	notation, _ := Diagnose(data)
	if !strings.Contains(notation, `"endpoint:memory:svc#1"`) || !strings.Contains(notation, `"Connection interrupted"`) {
		t.Errorf("notation = %s", notation)
	}
	if _, err := UnmarshalValue(data); !errors.Is(err, ErrHandle) {
		t.Errorf("UnmarshalValue error = %v, want ErrHandle", err)
	}

	errorOnly, _ := MarshalValue(value.ErrorConnectionInterrupted)
	decoded, err := UnmarshalValue(errorOnly)
	if err != nil || decoded != value.ErrorConnectionInterrupted {
		t.Errorf("canonical error decoded as %v, %v", decoded, err)
	}
}

func TestDeepTreeExport(t *testing.T) {
	root := value.NewArray()
	defer root.Release()
	current := root
	for range 10000 {
		child := value.NewArray()
		current.AppendMove(child)
		current = child
	}
	data, err := MarshalValue(root)
	if err != nil {
		t.Fatalf("MarshalValue: %v", err)
	}
	decoded, err := UnmarshalValue(data)
	if err != nil {
		t.Fatalf("UnmarshalValue: %v", err)
	}
	defer decoded.Release()
	if !value.Equal(root, decoded) {
		t.Error("deep tree changed in a round trip")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalValue([]byte{0xff}); err == nil {
		t.Error("UnmarshalValue accepted a lone break byte")
	}
	data, _ := Marshal(map[int]string{1: "integer key"})
	if _, err := UnmarshalValue(data); err == nil {
		t.Error("UnmarshalValue accepted an integer map key")
	}
}

// identityOnly is a capability with nothing behind it.
type identityOnly string

func (i identityOnly) Duplicate() (value.Capability, error) { return i, nil }
func (i identityOnly) Close() error                         { return nil }
func (i identityOnly) Identity() string                     { return string(i) }

func BenchmarkMarshalValue(b *testing.B) {
	tree := sampleTree()
	defer tree.Release()
	b.ReportAllocs()
	for b.Loop() {
		MarshalValue(tree)
	}
}
