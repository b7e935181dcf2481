// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/objex/lib/dispatch"
	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/transport"
)

// State is the lifecycle position of a Connection.
type State int32

const (
	// StateCreated is a new connection that has never been resumed.
	StateCreated State = iota

	// StateResumed is receiving and delivering messages.
	StateResumed

	// StateSuspended has stopped delivering messages. Sends still go
	// out; inbound messages wait in the transport or the event queue.
	StateSuspended

	// StateCancelled is terminal.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateResumed:
		return "resumed"
	case StateSuspended:
		return "suspended"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Event is delivered to an EventHandler. Exactly one field is set.
//
// Message is an unsolicited message or a canonical error value. The
// connection releases it after the handler returns; Retain it to keep
// it. Peer is a listener's newly created peer connection, suspended
// until the handler resumes it.
type Event struct {
	Message *value.Value
	Peer    *Connection
}

// Err returns the Go error for a canonical error event, or nil.
func (e Event) Err() error {
	if e.Message.Is(value.TypeError) {
		return errorFor(e.Message)
	}
	return nil
}

// EventHandler receives a connection's events on its target queue.
type EventHandler func(Event)

// ReplyHandler receives the reply to one call, or a canonical error
// value if the call failed. The reply is released after the handler
// returns.
type ReplyHandler func(reply *value.Value)

type pendingCall struct {
	queue   *dispatch.Queue
	handler ReplyHandler
}

// Connection is one end of a message channel. See the package
// documentation for its lifecycle.
type Connection struct {
	runtime  *Runtime
	logger   *slog.Logger
	name     string
	endpoint transport.Endpoint

	// remote is the destination of outbound frames: the dialed peer,
	// "" for a listener, or the peer address for a listener's peer.
	remote   transport.Address
	listener bool
	parent   *Connection

	sequence atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	// sends serializes outbound frames. events gates delivery to the
	// handler and is suspended while the connection is.
	sends  *dispatch.Queue
	events *dispatch.Queue

	mu           sync.Mutex
	state        State
	suspensions  int
	resumed      chan struct{}
	started      bool
	handler      EventHandler
	target       *dispatch.Queue
	pending      map[uint64]*pendingCall
	peers        map[transport.Address]*Connection
	credentials  transport.Credentials
	userData     any
	receiverDone chan struct{}
}

func faultf(op, format string, args ...any) {
	value.RaiseFault("connection."+op, format, args...)
}

// New wraps a dialed endpoint. The connection starts suspended.
func New(runtime *Runtime, name string, endpoint transport.Endpoint) *Connection {
	runtime.validate("New")
	if endpoint == nil {
		faultf("New", "nil endpoint")
	}
	return newConnection(runtime, name, endpoint, endpoint.Remote(), false, nil)
}

// NewListener wraps a listening endpoint. Each remote that sends to it
// gets its own peer connection.
func NewListener(runtime *Runtime, name string, endpoint transport.Endpoint) *Connection {
	runtime.validate("NewListener")
	if endpoint == nil {
		faultf("NewListener", "nil endpoint")
	}
	return newConnection(runtime, name, endpoint, "", true, nil)
}

func newConnection(runtime *Runtime, name string, endpoint transport.Endpoint,
	remote transport.Address, listener bool, parent *Connection,
) *Connection {
	logger := runtime.Logger.With("connection", name)
	var ctx context.Context
	if parent != nil {
		ctx = parent.ctx
	} else {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Connection{
		runtime:      runtime,
		logger:       logger,
		name:         name,
		endpoint:     endpoint,
		remote:       remote,
		listener:     listener,
		parent:       parent,
		ctx:          ctx,
		cancel:       cancel,
		sends:        dispatch.NewQueue(name+".send", logger),
		events:       dispatch.NewQueue(name+".events", logger),
		state:        StateCreated,
		suspensions:  1,
		resumed:      make(chan struct{}),
		pending:      make(map[uint64]*pendingCall),
		receiverDone: make(chan struct{}),
	}
	c.events.Suspend()
	if listener {
		c.peers = make(map[transport.Address]*Connection)
	}
	return c
}

// Name returns the service name, or the remote address for a peer.
func (c *Connection) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsListener reports whether c accepts peers.
func (c *Connection) IsListener() bool { return c.listener }

// Parent returns the listener that created a peer connection, or nil.
func (c *Connection) Parent() *Connection { return c.parent }

// SetEventHandler installs the handler for unsolicited messages and
// error events. It must be called before the first Resume. On a
// cancelled connection it does nothing, since a peer can be cancelled
// by its remote before the listener's handler sees it.
func (c *Connection) SetEventHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCancelled {
		return
	}
	if c.started {
		faultf("SetEventHandler", "connection %s is %s; set the handler before resuming", c.name, c.state)
	}
	c.handler = handler
}

// SetTargetQueue sets the queue on which the event handler and
// default reply continuations run. nil restores the runtime's queue.
func (c *Connection) SetTargetQueue(queue *dispatch.Queue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = queue
}

func (c *Connection) targetQueue() *dispatch.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target != nil {
		return c.target
	}
	return c.runtime.TargetQueue
}

// Resume undoes one Suspend, or starts a created connection. Resuming
// more times than suspended faults.
func (c *Connection) Resume() {
	c.mu.Lock()
	if c.state == StateCancelled {
		c.mu.Unlock()
		return
	}
	if c.suspensions == 0 {
		c.mu.Unlock()
		faultf("Resume", "connection %s resumed more times than suspended", c.name)
	}
	c.suspensions--
	first := false
	if c.suspensions == 0 {
		c.state = StateResumed
		close(c.resumed)
		first = !c.started
		c.started = true
	}
	c.events.Resume()
	c.mu.Unlock()

	if first {
		if c.parent == nil {
			go c.receiveLoop()
		} else {
			close(c.receiverDone)
		}
	}
}

// Suspend stops delivery until a matching Resume. Suspensions nest.
// A connection that has never been resumed stays in StateCreated.
func (c *Connection) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCancelled {
		return
	}
	if c.suspensions == 0 {
		c.resumed = make(chan struct{})
	}
	c.suspensions++
	if c.started {
		c.state = StateSuspended
	}
	c.events.Suspend()
}

// waitResumed blocks while the connection is suspended. It reports
// false once the connection is cancelled.
func (c *Connection) waitResumed() bool {
	for {
		c.mu.Lock()
		if c.state == StateCancelled {
			c.mu.Unlock()
			return false
		}
		if c.suspensions == 0 {
			c.mu.Unlock()
			return true
		}
		resumed := c.resumed
		c.mu.Unlock()

		select {
		case <-resumed:
		case <-c.ctx.Done():
			return false
		}
	}
}

// Cancel ends the connection. Pending calls resolve with
// ErrorConnectionInvalid, the event handler receives the same after
// any events already queued, and a listener's peers are cancelled
// asynchronously. Cancel is idempotent and does not wait for the
// receive goroutine.
func (c *Connection) Cancel() {
	c.terminate(value.ErrorConnectionInvalid)
}

func (c *Connection) terminate(reason *value.Value) {
	c.mu.Lock()
	if c.state == StateCancelled {
		c.mu.Unlock()
		return
	}
	c.state = StateCancelled
	pending := c.pending
	c.pending = nil
	peers := c.peers
	c.peers = nil
	if c.suspensions > 0 {
		close(c.resumed)
	}
	neverStarted := !c.started
	c.started = true
	c.mu.Unlock()

	if neverStarted {
		close(c.receiverDone)
	}

	c.logger.Debug("connection cancelled", "pending", len(pending), "peers", len(peers))
	c.cancel()

	for _, call := range pending {
		c.resolve(call, reason)
	}
	for _, peer := range peers {
		go peer.Cancel()
	}

	if c.parent != nil {
		c.parent.forgetPeer(c.remote, c)
		if closer, ok := c.endpoint.(transport.PeerCloser); ok {
			if err := closer.ClosePeer(c.remote); err != nil {
				c.logger.Debug("closing peer", "peer", c.remote, "error", err)
			}
		}
	} else if err := c.endpoint.Close(); err != nil {
		c.logger.Warn("closing endpoint", "error", err)
	}

	c.deliverEvent(Event{Message: reason})
	c.events.Close()
	c.sends.Close()
}

// Done is closed once the receive goroutine has exited after Cancel or
// a transport failure. Peers have no receive goroutine of their own;
// theirs is closed at the first Resume. A connection cancelled before
// it was ever resumed closes it in Cancel.
func (c *Connection) Done() <-chan struct{} { return c.receiverDone }

// NewEndpoint returns a connection handle naming this listener. The
// handle can travel in a message; Runtime.ConnectEndpoint dials it.
// The caller owns the returned value.
func (c *Connection) NewEndpoint() (*value.Value, error) {
	if !c.listener {
		return nil, fmt.Errorf("%s: only a listener can be named by an endpoint: %w", c.name, ErrNotConnectionHandle)
	}
	addresser, ok := c.endpoint.(transport.Addresser)
	if !ok {
		return nil, fmt.Errorf("%s: endpoint %T has no address: %w", c.name, c.endpoint, ErrNotConnectionHandle)
	}
	if c.State() == StateCancelled {
		return nil, fmt.Errorf("%s: %w", c.name, ErrConnectionInvalid)
	}
	return transport.NewConnectionHandle(addresser.Address()), nil
}

// Peers returns a listener's current peer connections.
func (c *Connection) Peers() []*Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := make([]*Connection, 0, len(c.peers))
	for _, peer := range c.peers {
		peers = append(peers, peer)
	}
	return peers
}

func (c *Connection) forgetPeer(address transport.Address, peer *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peers[address] == peer {
		delete(c.peers, address)
	}
}

// SetUserData attaches an arbitrary value to the connection.
func (c *Connection) SetUserData(data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userData = data
}

// UserData returns what SetUserData stored.
func (c *Connection) UserData() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userData
}

// Credentials returns the identity of the remote process as carried by
// the most recent message received from it. It is the zero value until
// a message arrives.
func (c *Connection) Credentials() transport.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credentials
}

// EUID returns the remote process's effective user ID.
func (c *Connection) EUID() uint32 { return c.Credentials().UID }

// EGID returns the remote process's effective group ID.
func (c *Connection) EGID() uint32 { return c.Credentials().GID }

// PID returns the remote process ID.
func (c *Connection) PID() int32 { return c.Credentials().PID }

// Session returns the remote process's session ID.
func (c *Connection) Session() int32 { return c.Credentials().Session }

func (c *Connection) setCredentials(credentials transport.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = credentials
}

// deliverEvent hands event to the handler through the events queue,
// then the target queue. The event's message is released afterwards.
func (c *Connection) deliverEvent(event Event) {
	queued := c.events.Async(func() {
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler == nil {
			if event.Message != nil && !event.Message.Is(value.TypeError) {
				c.logger.Debug("dropping event: no handler installed")
			}
			event.Message.Release()
			return
		}
		if !c.targetQueue().Async(func() {
			defer event.Message.Release()
			handler(event)
		}) {
			c.logger.Warn("dropping event: target queue closed")
			event.Message.Release()
		}
	})
	if !queued {
		c.logger.Debug("dropping event after cancel")
		event.Message.Release()
	}
}

// resolve runs a pending call's handler with reply on the call's
// queue. A nil queue runs it on the calling goroutine.
func (c *Connection) resolve(call *pendingCall, reply *value.Value) {
	if call.queue == nil {
		defer reply.Release()
		call.handler(reply)
		return
	}
	if !call.queue.Async(func() {
		defer reply.Release()
		call.handler(reply)
	}) {
		c.logger.Warn("dropping reply: queue closed", "queue", call.queue.Label())
		reply.Release()
	}
}
