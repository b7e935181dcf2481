// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unixsock

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a frame payload is compressed. The value
// is stored in the frame header; changing it breaks compatibility.
type Compression uint8

const (
	// CompressionNone sends payloads as packed.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: cheap, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level: better ratio for
	// text-heavy messages at more CPU.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the names returned by String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// errIncompressible means compression would not shrink the payload.
var errIncompressible = errors.New("payload is incompressible")

// compress returns data compressed with algorithm, or
// errIncompressible if the result would not be smaller.
func compress(algorithm Compression, data []byte) ([]byte, error) {
	switch algorithm {
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, errIncompressible
	}
}

// decompress reverses compress. The result must be exactly
// uncompressedSize bytes.
func decompress(algorithm Compression, compressed []byte, uncompressedSize int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload of %d bytes, header says %d", len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil
	case CompressionZstd:
		destination, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(destination) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(destination), uncompressedSize)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", algorithm)
	}
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use, so one
// of each serves every connection.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("unixsock: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("unixsock: zstd decoder initialization failed: " + err.Error())
	}
}
