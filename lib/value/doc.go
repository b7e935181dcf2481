// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package value implements the objex object model: a reference-counted,
// tagged tree of dictionaries, arrays, scalars, byte strings, UUIDs,
// and capability handles.
//
// Every node is a *Value. Constructors return a Value with one
// reference owned by the caller. Containers take their own reference
// to inserted children:
//
//	message := value.NewDictionary()
//	defer message.Release()
//
//	name := value.NewString("alice")
//	message.Set("name", name) // message retains name
//	name.Release()            // caller drops its own reference
//
//	message.Move("age", value.NewInt64(41)) // ownership moves into message
//	message.PutBool("admin", false)         // shorthand for Move(NewBool)
//
// When the last reference is released the node is finalized: containers
// release their children, and handles close their capability. Null,
// True, False and the canonical error values are static singletons;
// Retain and Release on them do nothing and mutating them faults.
//
// # Faults
//
// Programmer misuse (reading a value as the wrong type, inserting a
// reserved key, releasing a dead value, mutating a static value,
// building a cycle) is not a recoverable condition. The package logs
// the problem through log/slog and panics with a *Fault. Recoverable
// conditions, such as a failure to duplicate a descriptor during Clone,
// are returned as errors.
//
// # Reserved keys
//
// Keys beginning with [ReservedPrefix] carry transport metadata on
// received messages (sequence number, reply destination). Set and Move
// fault on them; the connection layer uses [Value.MoveReserved].
//
// # Concurrency
//
// Reference counts are atomic, so values may be retained and released
// from any goroutine. Mutating a container is not synchronized: a tree
// must not be modified while another goroutine reads it.
package value
