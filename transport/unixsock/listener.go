// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unixsock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/objex/transport"
)

// Listener accepts peers on a Unix socket path. Each accepted peer gets
// its own Address; frames from every peer arrive through Receive.
type Listener struct {
	path     string
	listener *net.UnixListener
	options  Options
	logger   *slog.Logger

	inbox     chan transport.Delivery
	closed    chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group

	mu       sync.Mutex
	peers    map[transport.Address]*stream
	nextPeer uint64
}

// Listen binds path, replacing a stale socket file left by a previous
// process.
func Listen(path string, options Options) (*Listener, error) {
	options = options.withDefaults()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	listener.SetUnlinkOnClose(true)

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	l := &Listener{
		path:     path,
		listener: listener,
		options:  options,
		logger:   options.Logger.With("socket", path),
		inbox:    make(chan transport.Delivery),
		closed:   make(chan struct{}),
		cancel:   cancel,
		group:    group,
		peers:    make(map[transport.Address]*stream),
	}
	group.Go(func() error { return l.acceptLoop(ctx) })
	l.logger.Info("unix socket listening")
	return l, nil
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// Address names the listener itself. Peers dialing it see the same
// value as their Remote.
func (l *Listener) Address() transport.Address { return socketAddress(l.path) }

func (l *Listener) acceptLoop(ctx context.Context) error {
	for {
		conn, err := l.listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Error("accept failed", "error", err)
			continue
		}
		peer, err := newStream(conn, l.options)
		if err != nil {
			l.logger.Error("rejecting peer", "error", err)
			conn.Close()
			continue
		}

		l.mu.Lock()
		select {
		case <-l.closed:
			l.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		l.nextPeer++
		address := transport.Address(fmt.Sprintf("unix:%s#%d", l.path, l.nextPeer))
		l.peers[address] = peer
		l.mu.Unlock()

		l.logger.Debug("peer connected", "peer", address, "pid", peer.peer.PID, "uid", peer.peer.UID)
		l.group.Go(func() error {
			l.readLoop(ctx, address, peer)
			return nil
		})
	}
}

func (l *Listener) readLoop(ctx context.Context, address transport.Address, peer *stream) {
	for {
		frame, credentials, err := peer.readFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				l.logger.Warn("peer stream failed", "peer", address, "error", err)
			}
			l.mu.Lock()
			delete(l.peers, address)
			l.mu.Unlock()
			peer.conn.Close()
			l.deliver(ctx, transport.Delivery{From: address, Credentials: peer.peer, Disconnected: true})
			return
		}
		delivery := transport.Delivery{Frame: frame, From: address, Credentials: credentials}
		if !l.deliver(ctx, delivery) {
			transport.CloseHandles(frame.Handles)
			return
		}
	}
}

func (l *Listener) deliver(ctx context.Context, delivery transport.Delivery) bool {
	select {
	case l.inbox <- delivery:
		return true
	case <-ctx.Done():
		return false
	}
}

// Send writes frame to the peer at destination.
func (l *Listener) Send(ctx context.Context, destination transport.Address, frame transport.Frame) error {
	select {
	case <-l.closed:
		transport.CloseHandles(frame.Handles)
		return transport.ErrClosed
	default:
	}
	l.mu.Lock()
	peer := l.peers[destination]
	l.mu.Unlock()
	if peer == nil {
		transport.CloseHandles(frame.Handles)
		return fmt.Errorf("%w: %s", transport.ErrUnknownDestination, destination)
	}
	if err := peer.writeFrame(ctx, frame); err != nil {
		return fmt.Errorf("sending to %s: %w", destination, err)
	}
	return nil
}

// Receive returns the next frame or disconnect notice from any peer.
func (l *Listener) Receive(ctx context.Context) (transport.Delivery, error) {
	select {
	case delivery := <-l.inbox:
		return delivery, nil
	case <-l.closed:
		return transport.Delivery{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Delivery{}, ctx.Err()
	}
}

// Remote returns "": a listener has many peers.
func (l *Listener) Remote() transport.Address { return "" }

// ClosePeer hangs up on one peer. Its read loop then reports the
// disconnect through Receive.
func (l *Listener) ClosePeer(address transport.Address) error {
	l.mu.Lock()
	peer := l.peers[address]
	l.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("%w: %s", transport.ErrUnknownDestination, address)
	}
	return peer.conn.Close()
}

// Close stops accepting, hangs up on every peer, waits for the read
// loops to finish, and removes the socket file.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.cancel()
		err = l.listener.Close()
		l.mu.Lock()
		for _, peer := range l.peers {
			peer.conn.Close()
		}
		l.mu.Unlock()
		if waitErr := l.group.Wait(); waitErr != nil && err == nil {
			err = waitErr
		}
		l.logger.Info("unix socket closed")
	})
	return err
}
