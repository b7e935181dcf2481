// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/bureau-foundation/objex/lib/value"
)

func TestFileCapabilityDuplicateSharesIdentity(t *testing.T) {
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer reader.Close()
	defer writer.Close()

	capability, err := DuplicateFile(writer)
	if err != nil {
		t.Fatalf("DuplicateFile: %v", err)
	}
	duplicate, err := capability.Duplicate()
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if duplicate.Identity() != capability.Identity() {
		t.Errorf("duplicate identity %q differs from %q", duplicate.Identity(), capability.Identity())
	}
	if duplicate.(*FileCapability).Fd() == capability.Fd() {
		t.Error("duplicate shares the original descriptor number")
	}

	other, err := DuplicateFile(reader)
	if err != nil {
		t.Fatalf("DuplicateFile: %v", err)
	}
	defer other.Close()
	if other.Identity() == capability.Identity() {
		t.Error("the two ends of a pipe have the same identity")
	}

	if err := capability.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := capability.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if capability.Fd() != -1 {
		t.Errorf("Fd() after Close = %d, want -1", capability.Fd())
	}
	if _, err := capability.Duplicate(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Duplicate after Close: %v, want os.ErrClosed", err)
	}

	// The duplicate still refers to the pipe.
	file, err := duplicate.(*FileCapability).File("pipe-writer")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if _, err := file.Write([]byte("ping")); err != nil {
		t.Fatalf("writing through the duplicate: %v", err)
	}
	file.Close()
	duplicate.Close()
	writer.Close()

	received, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(received) != "ping" {
		t.Errorf("read %q through the pipe, want %q", received, "ping")
	}
}

func TestEndpointHandle(t *testing.T) {
	handle := NewEndpointHandle("service#3")
	defer handle.Release()

	address, ok := EndpointAddress(handle)
	if !ok || address != "service#3" {
		t.Fatalf("EndpointAddress = %q, %v", address, ok)
	}
	if _, ok := EndpointAddress(value.Null); ok {
		t.Error("EndpointAddress accepted a null value")
	}
	if handle.Handle().Identity() != "endpoint:service#3" {
		t.Errorf("Identity() = %q", handle.Handle().Identity())
	}
}
