// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection exchanges [value.Value] messages over a
// [transport.Endpoint] and correlates requests with their replies.
//
// A Connection is created suspended. Install an event handler with
// [Connection.SetEventHandler], then call [Connection.Resume] to start
// receiving. Messages that are not replies to an outstanding call, and
// the canonical error values ([value.ErrorConnectionInvalid],
// [value.ErrorConnectionInterrupted]), arrive at the event handler on
// the connection's target queue.
//
// Every send allocates the next sequence ID. A send that expects a
// reply registers a pending call under that ID; the first reply frame
// bearing the ID resolves it, exactly once, on the queue the caller
// named. [Connection.SendMessageWithReplySync] blocks until then.
//
// A listener connection accepts many remote peers. The first message
// from an unseen remote creates a suspended peer connection, announced
// to the listener's handler as an [Event] with Peer set before the
// message itself is delivered to the peer.
//
// Cancel is terminal. It resolves every pending call with
// ErrorConnectionInvalid, delivers the same to the event handler, and
// cancels the listener's peers.
package connection
