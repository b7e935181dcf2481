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
	"sync"

	"github.com/bureau-foundation/objex/transport"
)

// Conn is a dialed connection to a Listener.
type Conn struct {
	stream *stream
	remote transport.Address
	logger *slog.Logger

	inbox      chan transport.Delivery
	closed     chan struct{}
	closeOnce  sync.Once
	readerDone chan struct{}
	readerErr  error
}

// Dial connects to the listener bound at path.
func Dial(ctx context.Context, path string, options Options) (*Conn, error) {
	options = options.withDefaults()
	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", path, err)
	}
	peer, err := newStream(raw.(*net.UnixConn), options)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("dialing %s: %w", path, err)
	}
	c := &Conn{
		stream:     peer,
		remote:     socketAddress(path),
		logger:     options.Logger.With("socket", path),
		inbox:      make(chan transport.Delivery),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)
	for {
		frame, credentials, err := c.stream.readFrame()
		if err != nil {
			c.readerErr = err
			return
		}
		select {
		case c.inbox <- transport.Delivery{Frame: frame, From: c.remote, Credentials: credentials}:
		case <-c.closed:
			transport.CloseHandles(frame.Handles)
			return
		}
	}
}

// PeerCredentials returns the listener process's identity as recorded
// when the connection was made.
func (c *Conn) PeerCredentials() transport.Credentials { return c.stream.peer }

// Send writes frame to the listener. destination must be "" or the
// listener's address.
func (c *Conn) Send(ctx context.Context, destination transport.Address, frame transport.Frame) error {
	if destination != "" && destination != c.remote {
		transport.CloseHandles(frame.Handles)
		return fmt.Errorf("%w: %s", transport.ErrUnknownDestination, destination)
	}
	select {
	case <-c.closed:
		transport.CloseHandles(frame.Handles)
		return transport.ErrClosed
	default:
	}
	return c.stream.writeFrame(ctx, frame)
}

// Receive returns the next frame from the listener. Once the listener
// hangs up it returns transport.ErrPeerClosed.
func (c *Conn) Receive(ctx context.Context) (transport.Delivery, error) {
	select {
	case delivery := <-c.inbox:
		return delivery, nil
	case <-c.closed:
		return transport.Delivery{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Delivery{}, ctx.Err()
	case <-c.readerDone:
		select {
		case <-c.closed:
			return transport.Delivery{}, transport.ErrClosed
		default:
		}
		if errors.Is(c.readerErr, io.EOF) || errors.Is(c.readerErr, net.ErrClosed) {
			return transport.Delivery{}, transport.ErrPeerClosed
		}
		c.logger.Warn("connection stream failed", "error", c.readerErr)
		return transport.Delivery{}, fmt.Errorf("%w: %v", transport.ErrPeerClosed, c.readerErr)
	}
}

// Remote returns the listener's address.
func (c *Conn) Remote() transport.Address { return c.remote }

// Close hangs up. The read goroutine exits once the socket is closed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.stream.conn.Close()
		<-c.readerDone
	})
	return err
}
