// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the objex binary: a tree of
// [Command] values dispatched by the first positional argument, pflag
// flag sets built lazily per command, structured help output, and
// typo suggestions for unknown commands and flags.
//
// [NewLogger] builds the command logger from the logging section of
// the configuration file.
package cli
