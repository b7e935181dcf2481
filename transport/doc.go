// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the point-to-point channel objex
// connections run over.
//
// An [Endpoint] sends and receives [Frame]s: a sequence ID, flags, the
// packed message bytes, and capabilities passed out of band. Received
// frames arrive as a [Delivery] carrying the sender's [Address] and
// [Credentials]. A listener endpoint serves many remote peers and
// distinguishes them by Address; a dialed endpoint talks to one.
//
// Two implementations live in subpackages. transport/memory connects
// endpoints inside one process, passing capabilities by duplication;
// it backs tests and embedded use. transport/unixsock runs over Unix
// domain stream sockets, passing descriptors with SCM_RIGHTS and
// reading the sender's identity from SCM_CREDENTIALS.
//
// [FileCapability] wraps an operating system descriptor so it can be
// carried in a handle value. [AddressCapability] wraps an Address so a
// reply destination can be carried in a message.
package transport
