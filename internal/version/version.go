package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Version is the dotted version of the running agent build. It is overridden via ldflags
	// and is the "from" side of every update attempt.
	Version = "1.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the version string without a leading "v".
func Short() string {
	return strings.TrimPrefix(strings.TrimSpace(Version), "v")
}

// Full returns a human-readable version string with commit, build time and platform.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, platform: %s/%s",
		Short(), Commit, BuildTime, runtime.GOOS, runtime.GOARCH)
}
