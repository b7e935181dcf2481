// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/objex/lib/value"
)

// Errors returned by synchronous calls in place of the canonical error
// values delivered to asynchronous handlers.
var (
	ErrConnectionInvalid     = errors.New("connection invalid")
	ErrConnectionInterrupted = errors.New("connection interrupted")
	ErrTerminationImminent   = errors.New("process termination imminent")

	// ErrReplyTimeout is returned when a synchronous call outlives the
	// runtime's SyncTimeout.
	ErrReplyTimeout = errors.New("timed out waiting for reply")

	// ErrNotConnectionHandle is returned by ConnectEndpoint for a value
	// that is not a connection handle, and by NewEndpoint on a
	// connection that cannot be named by one.
	ErrNotConnectionHandle = errors.New("not a connection handle")
)

// ReplyError reports that a synchronous call ended without a reply
// message. Cause is one of the errors above or a context error.
type ReplyError struct {
	Connection string
	Sequence   uint64
	Cause      error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: call %d: %v", e.Connection, e.Sequence, e.Cause)
}

func (e *ReplyError) Unwrap() error { return e.Cause }

// errorFor maps a canonical error value to its Go error.
func errorFor(errorValue *value.Value) error {
	switch errorValue {
	case value.ErrorConnectionInvalid:
		return ErrConnectionInvalid
	case value.ErrorConnectionInterrupted:
		return ErrConnectionInterrupted
	case value.ErrorTerminationImminent:
		return ErrTerminationImminent
	default:
		return errors.New(errorValue.ErrorDescription())
	}
}
