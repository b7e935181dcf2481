// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for objex
// commands. Fatal covers the one raw write that happens outside the
// structured logger: reporting an error from run() before or after the
// logger exists.
package process
