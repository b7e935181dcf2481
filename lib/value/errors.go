// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

// Canonical error values delivered by the connection layer in place of
// a reply or event. They are static and compared by identity.
var (
	// ErrorConnectionInvalid is delivered once a connection has been
	// cancelled or its peer is gone for good.
	ErrorConnectionInvalid = newStatic(&errorPayload{description: "Connection invalid"})

	// ErrorConnectionInterrupted is delivered when the transport failed
	// while calls were outstanding.
	ErrorConnectionInterrupted = newStatic(&errorPayload{description: "Connection interrupted"})

	// ErrorTerminationImminent warns that the process is shutting down.
	ErrorTerminationImminent = newStatic(&errorPayload{description: "Process termination imminent"})
)

// ErrorKeyDescription is the key under which ErrorDictionary stores
// the error description.
const ErrorKeyDescription = "description"

// ErrorDictionary expands an error value into a new dictionary holding
// its description, for callers that want to forward it as a message.
func ErrorDictionary(errorValue *Value) *Value {
	errorValue.expect("ErrorDictionary", TypeError)
	dictionary := NewDictionary()
	dictionary.PutString(ErrorKeyDescription, errorValue.ErrorDescription())
	return dictionary
}
