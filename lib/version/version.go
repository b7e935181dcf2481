// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for objex binaries.
//
// Version information is injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/objex/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Fields left unset fall back to the VCS stamps the Go toolchain records
// in the binary, and then to "unknown".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/bureau-foundation/objex/lib/wire"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = ""

	// GitDirty is "true" when there were uncommitted changes.
	GitDirty = ""

	// BuildTime is the UTC timestamp of the build.
	BuildTime = ""

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Build describes the running binary.
type Build struct {
	Version   string
	Commit    string
	Dirty     bool
	Time      string
	GoVersion string
	Platform  string

	// WireVersion is the container format version the binary writes.
	WireVersion byte
}

// Current returns the build information of the running binary.
func Current() Build {
	build := Build{
		Version:     Version,
		Commit:      GitCommit,
		Dirty:       GitDirty == "true",
		Time:        BuildTime,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		WireVersion: wire.Version,
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if build.Commit == "" {
					build.Commit = setting.Value[:min(7, len(setting.Value))]
				}
			case "vcs.time":
				if build.Time == "" {
					build.Time = setting.Value
				}
			case "vcs.modified":
				if GitDirty == "" {
					build.Dirty = setting.Value == "true"
				}
			}
		}
	}

	if build.Commit == "" {
		build.Commit = "unknown"
	}
	if build.Time == "" {
		build.Time = "unknown"
	}
	return build
}

// String formats the build for --version output.
func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.Time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return Current().String()
}

// Full returns detailed version information including the Go version
// and the wire format version.
func Full() string {
	build := Current()
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s\n  Wire format: %d",
		build, build.GoVersion, build.Platform, build.WireVersion)
}

// Short returns just the version number.
func Short() string {
	return Version
}
