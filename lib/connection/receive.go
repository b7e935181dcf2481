// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/lib/wire"
	"github.com/bureau-foundation/objex/transport"
)

// receiveLoop pulls deliveries from the endpoint while the connection
// is resumed. A delivery in hand when the connection is suspended is
// held until it resumes.
func (c *Connection) receiveLoop() {
	defer close(c.receiverDone)
	for {
		if !c.waitResumed() {
			return
		}
		delivery, err := c.endpoint.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("receive failed", "error", err)
			c.interrupt()
			return
		}
		if !c.waitResumed() {
			c.logger.Debug("dropping delivery after cancel",
				"from", delivery.From, "sequence", delivery.Frame.Sequence)
			transport.CloseHandles(delivery.Frame.Handles)
			return
		}
		if c.listener {
			c.route(delivery)
		} else if !delivery.Disconnected {
			c.accept(delivery)
		}
	}
}

// interrupt reports a transport failure: pending calls resolve with
// ErrorConnectionInterrupted and the handler receives the same. A
// listener passes the interruption on to its peers.
func (c *Connection) interrupt() {
	c.mu.Lock()
	if c.state == StateCancelled {
		c.mu.Unlock()
		return
	}
	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	peers := make([]*Connection, 0, len(c.peers))
	for _, peer := range c.peers {
		peers = append(peers, peer)
	}
	c.mu.Unlock()

	for _, call := range pending {
		c.resolve(call, value.ErrorConnectionInterrupted)
	}
	for _, peer := range peers {
		peer.interrupt()
	}
	c.deliverEvent(Event{Message: value.ErrorConnectionInterrupted})
}

// route hands a listener's delivery to the peer connection for its
// sender, creating the peer on first contact.
func (c *Connection) route(delivery transport.Delivery) {
	if delivery.Disconnected {
		c.mu.Lock()
		peer := c.peers[delivery.From]
		c.mu.Unlock()
		if peer != nil {
			c.logger.Debug("peer disconnected", "peer", delivery.From)
			peer.Cancel()
		}
		return
	}

	peer, created := c.peerFor(delivery.From)
	if peer == nil {
		transport.CloseHandles(delivery.Frame.Handles)
		return
	}
	if created {
		c.logger.Debug("new peer", "peer", delivery.From, "pid", delivery.Credentials.PID)
		c.deliverEvent(Event{Peer: peer})
	}
	peer.accept(delivery)
}

func (c *Connection) peerFor(address transport.Address) (*Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCancelled {
		return nil, false
	}
	if peer := c.peers[address]; peer != nil {
		return peer, false
	}
	peer := newConnection(c.runtime, string(address), c.endpoint, address, false, c)
	peer.target = c.target
	c.peers[address] = peer
	return peer, true
}

// accept decodes a delivery and either resolves the pending call it
// answers or delivers it as an event. A reply whose call is gone, for
// example abandoned by a synchronous caller, becomes an event.
func (c *Connection) accept(delivery transport.Delivery) {
	frame := delivery.Frame
	message, err := wire.Unpack(frame.Payload, frame.Handles, c.wireOptions()...)
	if err != nil {
		c.logger.Warn("dropping malformed message", "from", delivery.From, "sequence", frame.Sequence, "error", err)
		return
	}
	if !message.Is(value.TypeDictionary) {
		c.logger.Warn("dropping message: root is not a dictionary", "from", delivery.From, "type", message.Type())
		message.Release()
		return
	}
	c.setCredentials(delivery.Credentials)
	stamp(message, delivery)

	if frame.Has(transport.FlagReply) {
		c.mu.Lock()
		call, ok := c.pending[frame.Sequence]
		if ok {
			delete(c.pending, frame.Sequence)
		}
		c.mu.Unlock()
		if ok {
			c.resolve(call, message)
			return
		}
		c.logger.Debug("reply matched no pending call", "sequence", frame.Sequence)
	}
	c.deliverEvent(Event{Message: message})
}

// stamp replaces whatever reserved keys the sender wrote with the
// metadata the transport vouches for.
func stamp(message *value.Value, delivery transport.Delivery) {
	for _, key := range message.Keys() {
		if value.IsReservedKey(key) {
			message.Delete(key)
		}
	}
	message.MarkReceived(delivery.Credentials)
	message.MoveReserved(value.KeySequence, value.NewUInt64(delivery.Frame.Sequence))
	if delivery.Frame.Has(transport.FlagExpectsReply) {
		message.MoveReserved(value.KeyExpectsReply, value.True)
		message.MoveReserved(value.KeyReplyTo, transport.NewEndpointHandle(delivery.From))
	}
}
