// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/objex/lib/dispatch"
	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/lib/wire"
	"github.com/bureau-foundation/objex/transport"
)

func (c *Connection) checkMessage(op string, message *value.Value) {
	if !message.Is(value.TypeDictionary) {
		faultf(op, "message must be a dictionary, got %s", message.Type())
	}
	if c.listener {
		faultf(op, "listener %s has no single destination; send through a peer connection", c.name)
	}
}

// SendMessage sends message without waiting for a reply. The
// connection retains message until it is on the wire. A message made
// by CreateReply goes back to the requester as the reply to that
// request.
func (c *Connection) SendMessage(message *value.Value) {
	c.checkMessage("SendMessage", message)
	c.enqueue(message.Retain(), c.sequence.Add(1), nil)
}

// SendMessageWithReply sends message and runs handler with the reply
// on queue, or on the connection's target queue when queue is nil. If
// the call cannot complete, handler receives ErrorConnectionInvalid
// or ErrorConnectionInterrupted instead.
func (c *Connection) SendMessageWithReply(message *value.Value, queue *dispatch.Queue, handler ReplyHandler) {
	c.checkMessage("SendMessageWithReply", message)
	if handler == nil {
		faultf("SendMessageWithReply", "nil reply handler")
	}
	if queue == nil {
		queue = c.targetQueue()
	}
	c.enqueue(message.Retain(), c.sequence.Add(1), &pendingCall{queue: queue, handler: handler})
}

// SendMessageWithReplySync sends message and blocks until its reply
// arrives, ctx ends, or the runtime's SyncTimeout passes. The caller
// owns the returned reply. When the wait is abandoned, a reply that
// arrives later is delivered to the event handler.
func (c *Connection) SendMessageWithReplySync(ctx context.Context, message *value.Value) (*value.Value, error) {
	c.checkMessage("SendMessageWithReplySync", message)
	replies := make(chan *value.Value, 1)
	sequence := c.sequence.Add(1)
	c.enqueue(message.Retain(), sequence, &pendingCall{handler: func(reply *value.Value) {
		replies <- reply.Retain()
	}})

	var expired <-chan time.Time
	if c.runtime.SyncTimeout > 0 {
		timer := c.runtime.Clock.NewTimer(c.runtime.SyncTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	var cause error
	select {
	case reply := <-replies:
		return c.syncResult(sequence, reply)
	case <-ctx.Done():
		cause = ctx.Err()
	case <-expired:
		cause = ErrReplyTimeout
	}

	if !c.abandon(sequence) {
		// Resolution won the race; the reply is already on its way.
		return c.syncResult(sequence, <-replies)
	}
	c.logger.Debug("abandoned synchronous call", "sequence", sequence, "cause", cause)
	return nil, &ReplyError{Connection: c.name, Sequence: sequence, Cause: cause}
}

func (c *Connection) syncResult(sequence uint64, reply *value.Value) (*value.Value, error) {
	if reply.Is(value.TypeError) {
		return nil, &ReplyError{Connection: c.name, Sequence: sequence, Cause: errorFor(reply)}
	}
	return reply, nil
}

// abandon removes a pending call that has not been resolved. It
// reports false if the call was already resolved or is being resolved.
func (c *Connection) abandon(sequence uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	if _, ok := c.pending[sequence]; !ok {
		return false
	}
	delete(c.pending, sequence)
	return true
}

// SendBarrier runs fn once every message sent before it has been
// handed to the transport.
func (c *Connection) SendBarrier(fn func()) {
	if fn == nil {
		faultf("SendBarrier", "nil barrier function")
	}
	if !c.sends.Async(fn) {
		go fn()
	}
}

// enqueue registers call, if any, and queues the send. Registration
// happens here, before the frame can reach the peer, so a reply can
// never beat its record.
func (c *Connection) enqueue(message *value.Value, sequence uint64, call *pendingCall) {
	c.mu.Lock()
	if c.state == StateCancelled {
		c.mu.Unlock()
		message.Release()
		if call != nil {
			c.resolve(call, value.ErrorConnectionInvalid)
		}
		return
	}
	if call != nil {
		c.pending[sequence] = call
	}
	c.mu.Unlock()

	if !c.sends.Async(func() { c.transmit(message, sequence, call != nil) }) {
		message.Release()
		c.fail(sequence, value.ErrorConnectionInvalid)
	}
}

// transmit packs and sends one message on the send queue.
func (c *Connection) transmit(message *value.Value, sequence uint64, expectsReply bool) {
	defer message.Release()

	destination := c.remote
	var flags transport.FrameFlag
	if expectsReply {
		flags |= transport.FlagExpectsReply
	}
	if replyTo := message.Get(value.KeyReplyTo); replyTo != nil && message.Has(value.KeySequence) {
		address, ok := transport.EndpointAddress(replyTo)
		if !ok {
			c.logger.Warn("reply-to key holds no endpoint; sending as a plain message", "sequence", sequence)
		} else {
			destination = address
			sequence = message.GetUInt64(value.KeySequence)
			flags |= transport.FlagReply
		}
	}

	options := append(c.wireOptions(), wire.WithKeyFilter(func(key string) bool {
		return !value.IsReservedKey(key)
	}))
	packed, err := wire.Pack(message, options...)
	if err != nil {
		c.logger.Error("packing message", "sequence", sequence, "error", err)
		c.fail(sequence, value.ErrorConnectionInterrupted)
		return
	}

	err = c.endpoint.Send(c.ctx, destination, transport.Frame{
		Sequence: sequence,
		Flags:    flags,
		Payload:  packed.Bytes,
		Handles:  packed.Handles,
	})
	if err == nil {
		return
	}
	if c.ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
		c.logger.Debug("send after cancel", "sequence", sequence, "error", err)
		c.fail(sequence, value.ErrorConnectionInvalid)
		return
	}
	c.logger.Warn("send failed", "destination", destination, "sequence", sequence, "error", err)
	c.fail(sequence, value.ErrorConnectionInterrupted)
}

// fail resolves the pending call for sequence, if there still is one,
// with reason.
func (c *Connection) fail(sequence uint64, reason *value.Value) {
	c.mu.Lock()
	call, ok := c.pending[sequence]
	if ok {
		delete(c.pending, sequence)
	}
	c.mu.Unlock()
	if ok {
		c.resolve(call, reason)
	}
}

func (c *Connection) wireOptions() []wire.Option {
	options := make([]wire.Option, len(c.runtime.WireOptions), len(c.runtime.WireOptions)+1)
	copy(options, c.runtime.WireOptions)
	return options
}

// CreateReply returns an empty dictionary addressed as the reply to
// request, or nil if request does not expect one. Send it with
// SendMessage on the connection the request arrived on.
func CreateReply(request *value.Value) *value.Value {
	if !request.Is(value.TypeDictionary) {
		faultf("CreateReply", "request must be a dictionary, got %s", request.Type())
	}
	if !ExpectsReply(request) {
		return nil
	}
	replyTo := request.Get(value.KeyReplyTo)
	if replyTo == nil || !request.Has(value.KeySequence) {
		return nil
	}
	reply := value.NewDictionary()
	reply.MoveReserved(value.KeySequence, value.NewUInt64(request.GetUInt64(value.KeySequence)))
	reply.MoveReserved(value.KeyReplyTo, replyTo.Retain())
	return reply
}

// ExpectsReply reports whether a received message was sent by a
// caller waiting for a reply.
func ExpectsReply(message *value.Value) bool {
	return message.Is(value.TypeDictionary) && message.GetBool(value.KeyExpectsReply)
}
