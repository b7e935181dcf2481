// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/objex/lib/value"
)

// Compile-time interface checks.
var (
	_ value.Capability = (*FileCapability)(nil)
	_ value.Capability = AddressCapability("")
)

// FileCapability owns one operating system file descriptor. Its
// identity is the device and inode of the open file, so duplicates of
// the same descriptor compare equal.
type FileCapability struct {
	mu       sync.Mutex
	fd       int
	identity string
}

// NewFileCapability takes ownership of fd.
func NewFileCapability(fd int) (*FileCapability, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, fmt.Errorf("fstat descriptor %d: %w", fd, err)
	}
	return &FileCapability{
		fd:       fd,
		identity: fmt.Sprintf("file:%d:%d", stat.Dev, stat.Ino),
	}, nil
}

// DuplicateFile returns a capability for a duplicate of file's
// descriptor. The caller keeps ownership of file.
func DuplicateFile(file *os.File) (*FileCapability, error) {
	fd, err := unix.FcntlInt(file.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("duplicating descriptor of %s: %w", file.Name(), err)
	}
	capability, err := NewFileCapability(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return capability, nil
}

// Fd returns the descriptor, or -1 once closed. The capability still
// owns it.
func (c *FileCapability) Fd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

// File returns an *os.File over a duplicate of the descriptor. The
// caller owns the file.
func (c *FileCapability) File(name string) (*os.File, error) {
	duplicate, err := c.Duplicate()
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(duplicate.(*FileCapability).fd), name), nil
}

func (c *FileCapability) Duplicate() (value.Capability, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return nil, fmt.Errorf("duplicating %s: %w", c.identity, os.ErrClosed)
	}
	fd, err := unix.FcntlInt(uintptr(c.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("duplicating %s: %w", c.identity, err)
	}
	return &FileCapability{fd: fd, identity: c.identity}, nil
}

func (c *FileCapability) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func (c *FileCapability) Identity() string { return c.identity }

// AddressCapability carries an Address inside a handle value. It holds
// no operating system resource, so Close does nothing.
type AddressCapability Address

func (a AddressCapability) Duplicate() (value.Capability, error) { return a, nil }

func (a AddressCapability) Close() error { return nil }

func (a AddressCapability) Identity() string { return "endpoint:" + string(a) }

// NewEndpointHandle returns an endpoint handle naming address.
func NewEndpointHandle(address Address) *value.Value {
	return value.NewHandle(value.HandleEndpoint, AddressCapability(address))
}

// EndpointAddress returns the address carried by an endpoint handle,
// or false if v is not a handle wrapping an Address.
func EndpointAddress(v *value.Value) (Address, bool) {
	if !v.Is(value.TypeHandle) || v.HandleKind() != value.HandleEndpoint {
		return "", false
	}
	address, ok := v.Handle().(AddressCapability)
	return Address(address), ok
}

// NewConnectionHandle returns a connection handle naming the listener
// at address. Connecting through it reaches that listener directly.
func NewConnectionHandle(address Address) *value.Value {
	return value.NewHandle(value.HandleConnection, AddressCapability(address))
}

// ConnectionAddress returns the listener address carried by a
// connection handle, or false if v is not one.
func ConnectionAddress(v *value.Value) (Address, bool) {
	if !v.Is(value.TypeHandle) || v.HandleKind() != value.HandleConnection {
		return "", false
	}
	address, ok := v.Handle().(AddressCapability)
	return Address(address), ok
}
