// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire flattens a value tree into bytes plus an out-of-band
// table of capabilities, and rebuilds the tree on the other side.
//
// A packed message is a container header followed by entry records:
//
//	header  magic:u8=0x6c version:u8 flags:u8 type:u8 handles:u64 size:u64
//	entry   tag:u8 name_length:u32 name body
//
// Bodies are empty for null, one byte for bool, eight bytes for the
// numeric and date types, a u32 length plus bytes for string, data and
// uuid, and a u64 index into the capability table for handles. A nested
// dictionary or array body is its own header, its entries, and a pop
// record (tag 0xff with an empty name). Array entries have empty names.
//
// Multi-byte fields use the byte order recorded in flag bit 0 (set for
// big-endian). The root header's size counts every byte after it. A
// nested header's size counts its own entries but not its pop record,
// and its handle count covers every handle in its subtree.
//
// Pack and Unpack walk the tree with explicit stacks, never the Go call
// stack, so nesting depth is bounded only by WithMaxDepth on unpack.
//
// Capabilities never travel in the byte stream. Pack duplicates every
// handle it meets, in traversal order, into [Message.Handles]; the
// transport delivers them beside the bytes. Unpack takes ownership of
// the capabilities it is given.
package wire
