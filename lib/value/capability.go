// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

// Capability is the resource behind a handle Value: a file descriptor,
// a message endpoint, or a connection. A handle Value owns exactly one
// Capability and closes it when finalized.
type Capability interface {
	// Duplicate returns an independent capability referring to the
	// same underlying resource. Closing one does not affect the other.
	Duplicate() (Capability, error)

	// Close releases the capability.
	Close() error

	// Identity names the underlying resource. Two capabilities with
	// the same identity refer to the same resource, even when they are
	// distinct duplicates.
	Identity() string
}

// Credentials identify the process that sent a received message.
type Credentials struct {
	UID     uint32
	GID     uint32
	PID     int32
	Session int32
}
