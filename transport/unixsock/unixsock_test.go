// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unixsock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/objex/lib/testutil"
	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/transport"
)

func receive(t *testing.T, endpoint transport.Endpoint) transport.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	delivery, err := endpoint.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return delivery
}

func listenAndDial(t *testing.T, options Options) (*Listener, *Conn) {
	t.Helper()
	options.Logger = testutil.Logger()
	path := filepath.Join(testutil.SocketDir(t), "service.sock")
	listener, err := Listen(path, options)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, path, options)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return listener, conn
}

func TestRequestAndReply(t *testing.T) {
	listener, conn := listenAndDial(t, Options{})

	if err := conn.Send(context.Background(), "", transport.Frame{
		Sequence: 9, Flags: transport.FlagExpectsReply, Payload: []byte("ping"),
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	request := receive(t, listener)
	if request.Frame.Sequence != 9 || string(request.Frame.Payload) != "ping" || !request.Frame.Has(transport.FlagExpectsReply) {
		t.Fatalf("request = %+v", request.Frame)
	}
	if !strings.HasPrefix(string(request.From), "unix:"+listener.Path()+"#") {
		t.Errorf("peer address %q does not name the socket", request.From)
	}
	if request.Credentials.PID != int32(os.Getpid()) || request.Credentials.UID != uint32(os.Getuid()) {
		t.Errorf("credentials = %+v, want this process", request.Credentials)
	}

	if err := listener.Send(context.Background(), request.From, transport.Frame{
		Sequence: 9, Flags: transport.FlagReply, Payload: []byte("pong"),
	}); err != nil {
		t.Fatalf("reply Send: %v", err)
	}
	reply := receive(t, conn)
	if string(reply.Frame.Payload) != "pong" || !reply.Frame.Has(transport.FlagReply) || reply.From != conn.Remote() {
		t.Errorf("reply = %+v from %s", reply.Frame, reply.From)
	}
	if conn.PeerCredentials().PID != int32(os.Getpid()) {
		t.Errorf("PeerCredentials() = %+v", conn.PeerCredentials())
	}
}

func TestEmptyPayload(t *testing.T) {
	listener, conn := listenAndDial(t, Options{})
	if err := conn.Send(context.Background(), "", transport.Frame{Sequence: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if delivery := receive(t, listener); len(delivery.Frame.Payload) != 0 || delivery.Frame.Sequence != 1 {
		t.Errorf("delivery = %+v", delivery.Frame)
	}
}

func TestDescriptorPassing(t *testing.T) {
	listener, conn := listenAndDial(t, Options{})

	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer reader.Close()
	capability, err := transport.DuplicateFile(writer)
	if err != nil {
		t.Fatalf("DuplicateFile: %v", err)
	}
	writer.Close()

	if err := conn.Send(context.Background(), "", transport.Frame{
		Sequence: 1, Payload: []byte("fd"), Handles: []value.Capability{capability},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if capability.Fd() != -1 {
		t.Error("Send did not close the sender's copy of the descriptor")
	}

	delivery := receive(t, listener)
	if len(delivery.Frame.Handles) != 1 {
		t.Fatalf("received %d handles, want 1", len(delivery.Frame.Handles))
	}
	received := delivery.Frame.Handles[0].(*transport.FileCapability)
	file, err := received.File("pipe-writer")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if _, err := file.Write([]byte("through the socket")); err != nil {
		t.Fatalf("writing through the passed descriptor: %v", err)
	}
	file.Close()
	received.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "through the socket" {
		t.Errorf("pipe carried %q", got)
	}
}

func TestNonDescriptorHandleRefused(t *testing.T) {
	_, conn := listenAndDial(t, Options{})
	err := conn.Send(context.Background(), "", transport.Frame{
		Sequence: 1, Handles: []value.Capability{transport.AddressCapability("memory:x#1")},
	})
	if !errors.Is(err, ErrNotDescriptor) {
		t.Fatalf("Send error = %v, want ErrNotDescriptor", err)
	}
}

func TestCompressedPayloads(t *testing.T) {
	payload := bytes.Repeat([]byte("objex compressible payload "), 1024)
	for _, algorithm := range []Compression{CompressionLZ4, CompressionZstd} {
		t.Run(algorithm.String(), func(t *testing.T) {
			listener, conn := listenAndDial(t, Options{Compression: algorithm, CompressionThreshold: 64})
			if err := conn.Send(context.Background(), "", transport.Frame{Sequence: 3, Payload: payload}); err != nil {
				t.Fatalf("Send: %v", err)
			}
			delivery := receive(t, listener)
			if !bytes.Equal(delivery.Frame.Payload, payload) {
				t.Fatalf("payload of %d bytes arrived as %d bytes", len(payload), len(delivery.Frame.Payload))
			}
		})
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 4096)
	for _, algorithm := range []Compression{CompressionLZ4, CompressionZstd} {
		compressed, err := compress(algorithm, data)
		if err != nil {
			t.Fatalf("%s compress: %v", algorithm, err)
		}
		restored, err := decompress(algorithm, compressed, len(data))
		if err != nil {
			t.Fatalf("%s decompress: %v", algorithm, err)
		}
		if !bytes.Equal(restored, data) {
			t.Errorf("%s round trip changed the data", algorithm)
		}
		if _, err := decompress(algorithm, compressed, len(data)+1); err == nil {
			t.Errorf("%s decompress accepted the wrong size", algorithm)
		}
	}
	if _, err := compress(CompressionZstd, []byte{7}); !errors.Is(err, errIncompressible) {
		t.Errorf("one-byte compress error = %v, want errIncompressible", err)
	}
}

func TestParseCompression(t *testing.T) {
	for _, algorithm := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompression(algorithm.String())
		if err != nil || parsed != algorithm {
			t.Errorf("ParseCompression(%q) = %v, %v", algorithm.String(), parsed, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression accepted gzip")
	}
}

func TestPayloadLimit(t *testing.T) {
	_, conn := listenAndDial(t, Options{Limits: Limits{MaxPayload: 16}})
	err := conn.Send(context.Background(), "", transport.Frame{Sequence: 1, Payload: make([]byte, 17)})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("Send error = %v, want ErrFrameTooLarge", err)
	}
}

func TestPeerDisconnectReported(t *testing.T) {
	listener, conn := listenAndDial(t, Options{})
	if err := conn.Send(context.Background(), "", transport.Frame{Sequence: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	first := receive(t, listener)
	conn.Close()

	gone := receive(t, listener)
	if !gone.Disconnected || gone.From != first.From {
		t.Fatalf("after hang-up got %+v, want a disconnect from %s", gone, first.From)
	}
	err := listener.Send(context.Background(), first.From, transport.Frame{Sequence: 2})
	if !errors.Is(err, transport.ErrUnknownDestination) {
		t.Errorf("Send to a departed peer = %v, want ErrUnknownDestination", err)
	}
}

func TestClosePeerAndListenerClose(t *testing.T) {
	listener, conn := listenAndDial(t, Options{})
	if err := conn.Send(context.Background(), "", transport.Frame{Sequence: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	peer := receive(t, listener).From
	if err := listener.ClosePeer(peer); err != nil {
		t.Fatalf("ClosePeer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, transport.ErrPeerClosed) {
		t.Fatalf("Receive after ClosePeer = %v, want ErrPeerClosed", err)
	}
	if gone := receive(t, listener); !gone.Disconnected {
		t.Errorf("ClosePeer did not produce a disconnect delivery: %+v", gone)
	}

	if err := listener.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(listener.Path()); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Close: %v", err)
	}
	if _, err := listener.Receive(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Receive after Close = %v, want ErrClosed", err)
	}
}

func TestNetworkPaths(t *testing.T) {
	network := Network{Directory: testutil.SocketDir(t), Options: Options{Logger: testutil.Logger()}}
	if got := network.SocketPath("/abs/path.sock"); got != "/abs/path.sock" {
		t.Errorf("SocketPath(absolute) = %q", got)
	}
	listener, err := network.Listen("echo")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	conn, err := network.Dial(context.Background(), "echo")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if conn.Remote() != transport.Address("unix:"+network.SocketPath("echo")) {
		t.Errorf("Remote() = %q", conn.Remote())
	}
}

func TestDialAddress(t *testing.T) {
	network := Network{Directory: testutil.SocketDir(t), Options: Options{Logger: testutil.Logger()}}
	endpoint, err := network.Listen("named")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer endpoint.Close()
	listener := endpoint.(*Listener)

	conn, err := network.DialAddress(context.Background(), listener.Address())
	if err != nil {
		t.Fatalf("DialAddress: %v", err)
	}
	defer conn.Close()
	if conn.Remote() != listener.Address() {
		t.Errorf("Remote() = %q, want %q", conn.Remote(), listener.Address())
	}

	for _, address := range []transport.Address{"memory:named#1", "unix:relative.sock"} {
		if _, err := network.DialAddress(context.Background(), address); !errors.Is(err, transport.ErrUnknownDestination) {
			t.Errorf("DialAddress(%q) = %v, want ErrUnknownDestination", address, err)
		}
	}
}

func TestFrameHeaderRejectsGarbage(t *testing.T) {
	header := encodeFrameHeader(frameHeader{sequence: 5, payloadLength: 3, uncompressedLength: 3})
	decoded, err := decodeFrameHeader(header[:])
	if err != nil || decoded.sequence != 5 {
		t.Fatalf("decodeFrameHeader = %+v, %v", decoded, err)
	}
	header[0] = 'X'
	if _, err := decodeFrameHeader(header[:]); !errors.Is(err, ErrBadFrame) {
		t.Errorf("bad magic error = %v", err)
	}
}
