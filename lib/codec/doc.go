// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec converts [value.Value] trees to and from the document
// formats people and tools read: CBOR for inspection and export, and
// JSON with comments for hand-written messages.
//
// CBOR uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// tree always produces identical bytes. Value types without a native
// CBOR equivalent use tags:
//
//   - uuid: tag 37 over the 16 raw bytes
//   - date: [TagDate] over Unix nanoseconds
//   - uint64: [TagUnsigned] over the integer
//   - handle: [TagHandle] over [kind, identity]
//   - error: [TagError] over the description
//
// Handles export for inspection only; [UnmarshalValue] rejects them
// because a description cannot carry a live capability.
//
// [ValueFromJSON] accepts JSON with comments and trailing commas.
// Objects of the form {"$uuid": "..."}, {"$date": "RFC 3339"},
// {"$binary": "base64"}, and {"$uint64": "digits"} build the matching
// scalar types; every other object becomes a dictionary in document
// order.
package codec
