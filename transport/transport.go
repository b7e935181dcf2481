// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/bureau-foundation/objex/lib/value"
)

var (
	// ErrClosed is returned by operations on an endpoint after Close.
	ErrClosed = errors.New("transport: endpoint closed")

	// ErrPeerClosed is returned by Receive on a dialed endpoint once
	// the remote side has gone away and every queued frame has been
	// delivered.
	ErrPeerClosed = errors.New("transport: peer closed")

	// ErrUnknownDestination is returned by Send when the destination
	// is not reachable from this endpoint.
	ErrUnknownDestination = errors.New("transport: unknown destination")
)

// Address names one end of a channel. Listener endpoints hand out a
// distinct Address per remote peer; dialed endpoints have a single
// remote Address.
type Address string

// FrameFlag annotates a frame.
type FrameFlag uint8

const (
	// FlagReply marks a frame as the answer to the request carrying
	// the same sequence ID. Only reply frames resolve pending calls.
	FlagReply FrameFlag = 1 << 0

	// FlagExpectsReply marks a request whose sender is waiting.
	FlagExpectsReply FrameFlag = 1 << 1
)

// Frame is one message on the wire: a sequence ID, flags, the packed
// value bytes, and the capabilities that travel beside them.
type Frame struct {
	Sequence uint64
	Flags    FrameFlag
	Payload  []byte
	Handles  []value.Capability
}

// Has reports whether all bits of flag are set.
func (f Frame) Has(flag FrameFlag) bool { return f.Flags&flag == flag }

// Credentials identify the process that sent a frame.
type Credentials = value.Credentials

// Delivery is a frame as received, with the sender's address and
// identity. A Delivery with Disconnected set carries no frame: it
// reports that the remote at From has gone away.
type Delivery struct {
	Frame        Frame
	From         Address
	Credentials  Credentials
	Disconnected bool
}

// Endpoint is one side of a message channel.
//
// Send takes ownership of frame.Handles: they are closed or handed to
// the receiver whether or not Send succeeds. Receive blocks until a
// delivery arrives, ctx ends, or the endpoint is closed; the caller
// owns the handles of every delivered frame. Send is safe for
// concurrent use; Receive has a single caller.
type Endpoint interface {
	Send(ctx context.Context, destination Address, frame Frame) error
	Receive(ctx context.Context) (Delivery, error)

	// Remote returns the peer a dialed endpoint is connected to, or ""
	// for a listener.
	Remote() Address

	// Close releases the endpoint. Pending and later Receive calls
	// return ErrClosed.
	Close() error
}

// PeerCloser is implemented by listener endpoints that can hang up on
// one remote peer without closing the listener.
type PeerCloser interface {
	ClosePeer(address Address) error
}

// Network creates endpoints by service name.
type Network interface {
	// Listen publishes name and returns the listener endpoint.
	Listen(name string) (Endpoint, error)

	// Dial connects to the listener published under name.
	Dial(ctx context.Context, name string) (Endpoint, error)
}

// Addresser is implemented by endpoints that can name themselves,
// which lets a listener be handed out as a connection handle.
type Addresser interface {
	Address() Address
}

// AddressDialer is implemented by networks that can connect to a
// listener by its Address rather than its published name.
type AddressDialer interface {
	DialAddress(ctx context.Context, address Address) (Endpoint, error)
}

// CloseHandles closes every capability in handles. Endpoints use it to
// honor Send's ownership contract on failure paths.
func CloseHandles(handles []value.Capability) {
	for _, handle := range handles {
		_ = handle.Close()
	}
}
