// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unixsock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/objex/lib/value"
	"github.com/bureau-foundation/objex/transport"
)

const (
	// frameMagic is "OBJX".
	frameMagic uint32 = 0x4f424a58

	// frameHeaderSize is magic:u32 flags:u8 compression:u8 reserved:u16
	// sequence:u64 handle_count:u32 payload_length:u32
	// uncompressed_length:u32, all big-endian.
	frameHeaderSize = 28
)

var (
	ErrBadFrame       = errors.New("unixsock: malformed frame")
	ErrFrameTooLarge  = errors.New("unixsock: frame exceeds limits")
	ErrTooManyHandles = errors.New("unixsock: too many handles in frame")
	ErrNotDescriptor  = errors.New("unixsock: only descriptor handles can cross a unix socket")
)

type frameHeader struct {
	flags              transport.FrameFlag
	compression        Compression
	sequence           uint64
	handleCount        uint32
	payloadLength      uint32
	uncompressedLength uint32
}

func encodeFrameHeader(header frameHeader) [frameHeaderSize]byte {
	var buffer [frameHeaderSize]byte
	binary.BigEndian.PutUint32(buffer[0:4], frameMagic)
	buffer[4] = byte(header.flags)
	buffer[5] = byte(header.compression)
	binary.BigEndian.PutUint64(buffer[8:16], header.sequence)
	binary.BigEndian.PutUint32(buffer[16:20], header.handleCount)
	binary.BigEndian.PutUint32(buffer[20:24], header.payloadLength)
	binary.BigEndian.PutUint32(buffer[24:28], header.uncompressedLength)
	return buffer
}

func decodeFrameHeader(buffer []byte) (frameHeader, error) {
	if magic := binary.BigEndian.Uint32(buffer[0:4]); magic != frameMagic {
		return frameHeader{}, fmt.Errorf("%w: magic %#08x", ErrBadFrame, magic)
	}
	if reserved := binary.BigEndian.Uint16(buffer[6:8]); reserved != 0 {
		return frameHeader{}, fmt.Errorf("%w: reserved bits %#04x", ErrBadFrame, reserved)
	}
	return frameHeader{
		flags:              transport.FrameFlag(buffer[4]),
		compression:        Compression(buffer[5]),
		sequence:           binary.BigEndian.Uint64(buffer[8:16]),
		handleCount:        binary.BigEndian.Uint32(buffer[16:20]),
		payloadLength:      binary.BigEndian.Uint32(buffer[20:24]),
		uncompressedLength: binary.BigEndian.Uint32(buffer[24:28]),
	}, nil
}

// stream frames messages over one connected Unix stream socket.
type stream struct {
	conn    *net.UnixConn
	options Options

	// peer is the SO_PEERCRED identity captured at connect time. It
	// attributes frames that arrive without SCM_CREDENTIALS.
	peer transport.Credentials

	writeMu sync.Mutex
}

// newStream enables SO_PASSCRED so every received segment carries the
// sender's credentials, and records the peer credentials.
func newStream(conn *net.UnixConn, options Options) (*stream, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("accessing socket: %w", err)
	}
	var (
		peer       *unix.Ucred
		controlErr error
	)
	err = raw.Control(func(fd uintptr) {
		if controlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PASSCRED, 1); controlErr != nil {
			controlErr = fmt.Errorf("enabling SO_PASSCRED: %w", controlErr)
			return
		}
		peer, controlErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if controlErr != nil {
			controlErr = fmt.Errorf("reading SO_PEERCRED: %w", controlErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("accessing socket: %w", err)
	}
	if controlErr != nil {
		return nil, controlErr
	}
	return &stream{conn: conn, options: options, peer: credentialsFrom(*peer)}, nil
}

func credentialsFrom(ucred unix.Ucred) transport.Credentials {
	session, err := unix.Getsid(int(ucred.Pid))
	if err != nil {
		session = -1
	}
	return transport.Credentials{
		UID:     ucred.Uid,
		GID:     ucred.Gid,
		PID:     ucred.Pid,
		Session: int32(session),
	}
}

// writeFrame sends one frame. Descriptors ride SCM_RIGHTS on the
// header bytes. The frame's handles are closed on return: the kernel
// holds its own references once sendmsg succeeds.
func (s *stream) writeFrame(ctx context.Context, frame transport.Frame) error {
	defer transport.CloseHandles(frame.Handles)

	limits := s.options.Limits
	if len(frame.Handles) > limits.MaxHandles {
		return fmt.Errorf("%w: %d handles, limit %d", ErrTooManyHandles, len(frame.Handles), limits.MaxHandles)
	}
	if len(frame.Payload) > limits.MaxPayload {
		return fmt.Errorf("%w: %d byte payload, limit %d", ErrFrameTooLarge, len(frame.Payload), limits.MaxPayload)
	}
	descriptors := make([]int, 0, len(frame.Handles))
	for _, handle := range frame.Handles {
		file, ok := handle.(interface{ Fd() int })
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotDescriptor, handle.Identity())
		}
		descriptors = append(descriptors, file.Fd())
	}

	payload := frame.Payload
	algorithm := CompressionNone
	if s.options.Compression != CompressionNone && len(payload) >= s.options.CompressionThreshold {
		compressed, err := compress(s.options.Compression, payload)
		switch {
		case err == nil:
			payload = compressed
			algorithm = s.options.Compression
		case !errors.Is(err, errIncompressible):
			return err
		}
	}

	header := encodeFrameHeader(frameHeader{
		flags:              frame.Flags,
		compression:        algorithm,
		sequence:           frame.Sequence,
		handleCount:        uint32(len(descriptors)),
		payloadLength:      uint32(len(payload)),
		uncompressedLength: uint32(len(frame.Payload)),
	})
	var rights []byte
	if len(descriptors) > 0 {
		rights = unix.UnixRights(descriptors...)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	written, rightsWritten, err := s.conn.WriteMsgUnix(header[:], rights, nil)
	if err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if written != len(header) || rightsWritten != len(rights) {
		return fmt.Errorf("writing frame header: short write of %d/%d bytes", written, len(header))
	}
	if len(payload) > 0 {
		if _, err := s.conn.Write(payload); err != nil {
			return fmt.Errorf("writing %d byte payload: %w", len(payload), err)
		}
	}
	return nil
}

// readFrame reads one frame. It returns io.EOF when the peer closed
// cleanly between frames. Any other error leaves the stream unusable.
func (s *stream) readFrame() (transport.Frame, transport.Credentials, error) {
	limits := s.options.Limits
	var header [frameHeaderSize]byte
	control := make([]byte, unix.CmsgSpace(4*limits.MaxHandles)+unix.CmsgSpace(unix.SizeofUcred))

	var descriptors []int
	credentials := s.peer
	fail := func(err error) (transport.Frame, transport.Credentials, error) {
		closeDescriptors(descriptors)
		return transport.Frame{}, transport.Credentials{}, err
	}

	read := 0
	for read < frameHeaderSize {
		count, controlCount, flags, _, err := s.conn.ReadMsgUnix(header[read:], control)
		if controlCount > 0 {
			received, sender, parseErr := parseControl(control[:controlCount])
			descriptors = append(descriptors, received...)
			if parseErr != nil {
				return fail(parseErr)
			}
			if sender != nil {
				credentials = *sender
			}
		}
		if err != nil {
			if read == 0 && errors.Is(err, io.EOF) {
				return fail(io.EOF)
			}
			return fail(fmt.Errorf("reading frame header: %w", err))
		}
		if count == 0 {
			if read == 0 {
				return fail(io.EOF)
			}
			return fail(fmt.Errorf("reading frame header: %w", io.ErrUnexpectedEOF))
		}
		if flags&unix.MSG_CTRUNC != 0 {
			return fail(fmt.Errorf("%w: control data truncated", ErrTooManyHandles))
		}
		read += count
	}

	decoded, err := decodeFrameHeader(header[:])
	if err != nil {
		return fail(err)
	}
	if int64(decoded.payloadLength) > int64(limits.MaxPayload) || int64(decoded.uncompressedLength) > int64(limits.MaxPayload) {
		return fail(fmt.Errorf("%w: %d byte payload (%d uncompressed), limit %d",
			ErrFrameTooLarge, decoded.payloadLength, decoded.uncompressedLength, limits.MaxPayload))
	}
	if int(decoded.handleCount) != len(descriptors) {
		return fail(fmt.Errorf("%w: header declares %d handles, %d descriptors arrived",
			ErrBadFrame, decoded.handleCount, len(descriptors)))
	}

	payload := make([]byte, decoded.payloadLength)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		return fail(fmt.Errorf("reading %d byte payload: %w", len(payload), err))
	}
	payload, err = decompress(decoded.compression, payload, int(decoded.uncompressedLength))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrBadFrame, err))
	}

	handles := make([]value.Capability, 0, len(descriptors))
	for i, descriptor := range descriptors {
		capability, err := transport.NewFileCapability(descriptor)
		if err != nil {
			transport.CloseHandles(handles)
			closeDescriptors(descriptors[i:])
			return transport.Frame{}, transport.Credentials{}, err
		}
		handles = append(handles, capability)
	}

	return transport.Frame{
		Sequence: decoded.sequence,
		Flags:    decoded.flags,
		Payload:  payload,
		Handles:  handles,
	}, credentials, nil
}

// parseControl extracts passed descriptors and sender credentials. The
// descriptors are returned even on error so the caller can close them.
func parseControl(control []byte) ([]int, *transport.Credentials, error) {
	messages, err := unix.ParseSocketControlMessage(control)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing control messages: %w", err)
	}
	var (
		descriptors []int
		sender      *transport.Credentials
	)
	for i := range messages {
		message := &messages[i]
		if message.Header.Level != unix.SOL_SOCKET {
			continue
		}
		switch message.Header.Type {
		case unix.SCM_RIGHTS:
			rights, err := unix.ParseUnixRights(message)
			if err != nil {
				return descriptors, nil, fmt.Errorf("parsing SCM_RIGHTS: %w", err)
			}
			descriptors = append(descriptors, rights...)
		case unix.SCM_CREDENTIALS:
			ucred, err := unix.ParseUnixCredentials(message)
			if err != nil {
				return descriptors, nil, fmt.Errorf("parsing SCM_CREDENTIALS: %w", err)
			}
			credentials := credentialsFrom(*ucred)
			sender = &credentials
		}
	}
	return descriptors, sender, nil
}

func closeDescriptors(descriptors []int) {
	for _, descriptor := range descriptors {
		_ = unix.Close(descriptor)
	}
}
