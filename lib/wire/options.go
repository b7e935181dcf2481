// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "encoding/binary"

// DefaultMaxDepth bounds container nesting accepted by Unpack.
const DefaultMaxDepth = 1 << 16

// Option configures Pack and Unpack.
type Option func(*options)

type options struct {
	order    binary.ByteOrder
	keep     func(key string) bool
	maxDepth int
}

func buildOptions(opts []Option) options {
	configured := options{
		order:    binary.NativeEndian,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&configured)
	}
	return configured
}

// WithByteOrder selects the byte order Pack writes. The default is the
// host's native order. Unpack ignores it and follows the header flags.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) { o.order = order }
}

// WithKeyFilter makes Pack omit root dictionary entries for which keep
// returns false. Nested containers are packed whole.
func WithKeyFilter(keep func(key string) bool) Option {
	return func(o *options) { o.keep = keep }
}

// WithMaxDepth bounds how deeply Unpack lets containers nest, counting
// the root as depth 1.
func WithMaxDepth(depth int) Option {
	return func(o *options) { o.maxDepth = depth }
}

// isBigEndian probes order rather than comparing it to the standard
// values, so binary.NativeEndian resolves to the host's real order.
func isBigEndian(order binary.ByteOrder) bool {
	var probe [2]byte
	order.PutUint16(probe[:], 1)
	return probe[0] == 0
}
