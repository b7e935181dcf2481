// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unixsock

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/objex/transport"
)

var (
	_ transport.AddressDialer = Network{}
	_ transport.Addresser     = (*Listener)(nil)
)

const addressPrefix = "unix:"

func socketAddress(path string) transport.Address {
	return transport.Address(addressPrefix + path)
}

// Network maps service names to socket files under Directory. Absolute
// names are used as paths directly.
type Network struct {
	Directory string
	Options   Options
}

// SocketPath returns the socket file for name.
func (n Network) SocketPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(n.Directory, name+".sock")
}

func (n Network) Listen(name string) (transport.Endpoint, error) {
	return Listen(n.SocketPath(name), n.Options)
}

func (n Network) Dial(ctx context.Context, name string) (transport.Endpoint, error) {
	return Dial(ctx, n.SocketPath(name), n.Options)
}

// DialAddress connects to the listener named by a unix: address, as
// returned by Listener.Address.
func (n Network) DialAddress(ctx context.Context, address transport.Address) (transport.Endpoint, error) {
	path, ok := strings.CutPrefix(string(address), addressPrefix)
	if !ok || !filepath.IsAbs(path) {
		return nil, fmt.Errorf("dialing %s: %w", address, transport.ErrUnknownDestination)
	}
	return Dial(ctx, path, n.Options)
}
