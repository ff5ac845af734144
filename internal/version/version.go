/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build information.
package version

import (
	"runtime"
	"strings"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/openhome/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Commit is the git revision, also set via ldflags.
var Commit = "dev"

// Info is served by the status API.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
}

// Current returns the running build.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Go: runtime.Version()}
}

// UserAgent identifies outbound requests.
func UserAgent() string {
	return "OpenHome/" + strings.TrimPrefix(Version, "v")
}
