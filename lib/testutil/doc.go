// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for objex packages.
//
// [SocketDir] creates a short temporary directory for Unix domain
// sockets, whose paths are limited to 108 bytes (sun_path).
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so tests do not call time.After
// directly. They are the only place real wall-clock timeouts appear in
// the test suite.
//
// [UniqueID] generates monotonically increasing identifiers for names
// that must not collide between tests sharing a network or directory.
//
// [Logger] returns a logger that only surfaces errors, keeping test
// output quiet while still showing faults.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
