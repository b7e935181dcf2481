// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unixsock

import "log/slog"

// Limits bound what a peer may send in one frame. Frames beyond them
// are refused on send and end the stream on receive.
type Limits struct {
	// MaxPayload is the largest payload, compressed or not, in bytes.
	MaxPayload int

	// MaxHandles is the most descriptors one frame may carry. The
	// kernel caps SCM_RIGHTS at 253.
	MaxHandles int
}

// DefaultLimits returns the limits used when Options leaves them zero.
func DefaultLimits() Limits {
	return Limits{MaxPayload: 64 << 20, MaxHandles: 253}
}

// Options configure listeners and dialed connections.
type Options struct {
	Logger *slog.Logger
	Limits Limits

	// Compression is applied to payloads of at least
	// CompressionThreshold bytes. Payloads that do not shrink are sent
	// as is.
	Compression          Compression
	CompressionThreshold int
}

// DefaultCompressionThreshold is used when Compression is set and
// CompressionThreshold is zero.
const DefaultCompressionThreshold = 4096

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	defaults := DefaultLimits()
	if o.Limits.MaxPayload <= 0 {
		o.Limits.MaxPayload = defaults.MaxPayload
	}
	if o.Limits.MaxHandles <= 0 || o.Limits.MaxHandles > defaults.MaxHandles {
		o.Limits.MaxHandles = defaults.MaxHandles
	}
	if o.CompressionThreshold <= 0 {
		o.CompressionThreshold = DefaultCompressionThreshold
	}
	return o
}
