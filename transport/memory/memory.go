// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process transport. A Network hands out
// ports: Listen publishes a named port, Dial allocates a client port
// whose remote is that listener. Frames queue on the receiving port
// without bound. Capabilities move to the receiver as they are, so
// descriptors and endpoint handles cross without copying.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/objex/transport"
)

// Compile-time interface checks.
var (
	_ transport.Network       = (*Network)(nil)
	_ transport.AddressDialer = (*Network)(nil)
	_ transport.Endpoint      = (*Port)(nil)
	_ transport.Addresser     = (*Port)(nil)
)

// Network is a namespace of in-process ports.
type Network struct {
	logger      *slog.Logger
	credentials transport.Credentials

	mu       sync.Mutex
	ports    map[transport.Address]*Port
	services map[string]transport.Address
	nextPort uint64
}

// NewNetwork returns an empty network. Frames sent on it carry the
// credentials of the current process unless a port overrides them.
func NewNetwork(logger *slog.Logger) *Network {
	return &Network{
		logger:      logger,
		credentials: ProcessCredentials(),
		ports:       make(map[transport.Address]*Port),
		services:    make(map[string]transport.Address),
	}
}

// ProcessCredentials returns the identity of the running process.
func ProcessCredentials() transport.Credentials {
	session, err := unix.Getsid(0)
	if err != nil {
		session = -1
	}
	return transport.Credentials{
		UID:     uint32(os.Geteuid()),
		GID:     uint32(os.Getegid()),
		PID:     int32(os.Getpid()),
		Session: int32(session),
	}
}

func (n *Network) newPort(kind string, remote transport.Address, credentials transport.Credentials) *Port {
	n.nextPort++
	port := &Port{
		network:     n,
		address:     transport.Address(fmt.Sprintf("memory:%s#%d", kind, n.nextPort)),
		remote:      remote,
		credentials: credentials,
		signal:      make(chan struct{}),
	}
	n.ports[port.address] = port
	return port
}

// Listen publishes name. It fails if name is already published.
func (n *Network) Listen(name string) (transport.Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.services[name]; taken {
		return nil, fmt.Errorf("listening on %q: name already published", name)
	}
	port := n.newPort(name, "", n.credentials)
	port.service = name
	n.services[name] = port.address
	n.logger.Debug("memory port listening", "service", name, "address", port.address)
	return port, nil
}

// Dial connects to the listener published under name.
func (n *Network) Dial(ctx context.Context, name string) (transport.Endpoint, error) {
	return n.DialAs(ctx, name, n.credentials)
}

// DialAs connects to name with frames attributed to credentials,
// letting tests stand in for other processes.
func (n *Network) DialAs(ctx context.Context, name string, credentials transport.Credentials) (*Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	listener, published := n.services[name]
	if !published {
		return nil, fmt.Errorf("dialing %q: %w", name, transport.ErrUnknownDestination)
	}
	return n.newPort("client", listener, credentials), nil
}

// DialAddress connects to the listener port at address, published or
// not.
func (n *Network) DialAddress(ctx context.Context, address transport.Address) (transport.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	port := n.ports[address]
	if port == nil || port.service == "" {
		return nil, fmt.Errorf("dialing %s: %w", address, transport.ErrUnknownDestination)
	}
	return n.newPort("client", address, n.credentials), nil
}

func (n *Network) lookup(address transport.Address) *Port {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ports[address]
}

// Port is one endpoint on a Network.
type Port struct {
	network     *Network
	address     transport.Address
	remote      transport.Address
	service     string
	credentials transport.Credentials

	mu         sync.Mutex
	queue      []transport.Delivery
	signal     chan struct{}
	closed     bool
	remoteGone bool
}

// Address returns the port's own address.
func (p *Port) Address() transport.Address { return p.address }

func (p *Port) Remote() transport.Address { return p.remote }

// Send queues frame on the destination port. An empty destination
// means the dialed remote.
func (p *Port) Send(ctx context.Context, destination transport.Address, frame transport.Frame) error {
	if err := ctx.Err(); err != nil {
		transport.CloseHandles(frame.Handles)
		return err
	}
	if destination == "" {
		destination = p.remote
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		transport.CloseHandles(frame.Handles)
		return transport.ErrClosed
	}

	target := p.network.lookup(destination)
	if target == nil {
		transport.CloseHandles(frame.Handles)
		return fmt.Errorf("sending to %s: %w", destination, transport.ErrUnknownDestination)
	}

	frame.Payload = append([]byte(nil), frame.Payload...)
	if !target.enqueue(transport.Delivery{Frame: frame, From: p.address, Credentials: p.credentials}) {
		transport.CloseHandles(frame.Handles)
		return fmt.Errorf("sending to %s: %w", destination, transport.ErrUnknownDestination)
	}
	return nil
}

// enqueue appends a delivery and wakes the receiver. It reports false
// if the port is closed.
func (p *Port) enqueue(delivery transport.Delivery) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.queue = append(p.queue, delivery)
	p.wakeLocked()
	return true
}

func (p *Port) wakeLocked() {
	close(p.signal)
	p.signal = make(chan struct{})
}

func (p *Port) Receive(ctx context.Context) (transport.Delivery, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return transport.Delivery{}, transport.ErrClosed
		}
		if len(p.queue) > 0 {
			delivery := p.queue[0]
			p.queue[0] = transport.Delivery{}
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return delivery, nil
		}
		if p.remoteGone {
			p.mu.Unlock()
			return transport.Delivery{}, transport.ErrPeerClosed
		}
		signal := p.signal
		p.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return transport.Delivery{}, ctx.Err()
		}
	}
}

// Close unregisters the port and drops anything queued on it. Closing
// a dialed port tells its listener the peer disconnected; closing a
// listener ends Receive on every port dialed to it once their queues
// drain.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropped := p.queue
	p.queue = nil
	p.wakeLocked()
	p.mu.Unlock()

	for _, delivery := range dropped {
		transport.CloseHandles(delivery.Frame.Handles)
	}

	network := p.network
	network.mu.Lock()
	delete(network.ports, p.address)
	if p.service != "" {
		delete(network.services, p.service)
	}
	var clients []*Port
	for _, port := range network.ports {
		if port.remote == p.address {
			clients = append(clients, port)
		}
	}
	remote := network.ports[p.remote]
	network.mu.Unlock()

	for _, client := range clients {
		client.mu.Lock()
		client.remoteGone = true
		client.wakeLocked()
		client.mu.Unlock()
	}
	if remote != nil {
		remote.enqueue(transport.Delivery{From: p.address, Credentials: p.credentials, Disconnected: true})
	}
	return nil
}
