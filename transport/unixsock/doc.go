// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package unixsock carries frames over Unix stream sockets between
// processes on one host.
//
// Each frame is a fixed 28-byte header followed by the payload. File
// descriptor handles travel as SCM_RIGHTS attached to the header, and
// with SO_PASSCRED enabled every segment carries the sender's
// SCM_CREDENTIALS, so a listener can attribute each frame to a pid,
// uid, and gid. Payloads above a threshold may be compressed with LZ4
// or zstd.
//
// A [Listener] accepts any number of peers and reports each one's
// disconnect as a [transport.Delivery] with Disconnected set. A [Conn]
// is the dialing side. [Network] adapts both to [transport.Network].
package unixsock
