// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/objex/lib/clock"
	"github.com/bureau-foundation/objex/lib/dispatch"
	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/lib/wire"
	"github.com/bureau-foundation/objex/transport"
)

// Runtime holds what every connection in a process shares. main
// builds one and passes it to the code that opens connections.
type Runtime struct {
	Logger  *slog.Logger
	Clock   clock.Clock
	Network transport.Network

	// TargetQueue runs event handlers and reply continuations for
	// connections that were not given a queue of their own.
	TargetQueue *dispatch.Queue

	// SyncTimeout bounds SendMessageWithReplySync. Zero waits for the
	// reply or the caller's context.
	SyncTimeout time.Duration

	// WireOptions apply to every pack and unpack. Sends replace any key
	// filter with one that strips reserved keys.
	WireOptions []wire.Option
}

// NewRuntime returns a Runtime with a real clock and its own target
// queue. Close releases the queue.
func NewRuntime(network transport.Network, logger *slog.Logger) *Runtime {
	return &Runtime{
		Logger:      logger,
		Clock:       clock.Real(),
		Network:     network,
		TargetQueue: dispatch.NewQueue("objex.target", logger),
	}
}

// Close stops the runtime's target queue after the tasks already on it
// have run.
func (r *Runtime) Close() {
	if r.TargetQueue != nil {
		r.TargetQueue.Close()
	}
}

func (r *Runtime) validate(op string) {
	if r == nil {
		faultf(op, "nil runtime")
	}
	if r.Logger == nil || r.Clock == nil || r.TargetQueue == nil {
		faultf(op, "runtime needs Logger, Clock, and TargetQueue")
	}
}

// Connect dials the service published under name and returns a
// suspended connection to it.
func (r *Runtime) Connect(ctx context.Context, name string) (*Connection, error) {
	r.validate("Connect")
	endpoint, err := r.Network.Dial(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", name, err)
	}
	return New(r, name, endpoint), nil
}

// Listen publishes name and returns a suspended listener connection.
func (r *Runtime) Listen(name string) (*Connection, error) {
	r.validate("Listen")
	endpoint, err := r.Network.Listen(name)
	if err != nil {
		return nil, fmt.Errorf("listening as %s: %w", name, err)
	}
	return NewListener(r, name, endpoint), nil
}

// ConnectEndpoint dials the listener named by a connection handle, as
// made by Connection.NewEndpoint and possibly received in a message,
// and returns a suspended connection to it. The caller keeps its
// reference to handle.
func (r *Runtime) ConnectEndpoint(ctx context.Context, handle *value.Value) (*Connection, error) {
	r.validate("ConnectEndpoint")
	address, ok := transport.ConnectionAddress(handle)
	if !ok {
		return nil, fmt.Errorf("connecting to endpoint: %w", ErrNotConnectionHandle)
	}
	dialer, ok := r.Network.(transport.AddressDialer)
	if !ok {
		return nil, fmt.Errorf("connecting to %s: network %T cannot dial addresses", address, r.Network)
	}
	endpoint, err := dialer.DialAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	return New(r, string(address), endpoint), nil
}
