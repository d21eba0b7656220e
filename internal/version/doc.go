// Package version exposes build metadata for the agent.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Short is what the updater treats as the currently running
// version when it records attempts and confirms a finished update.
package version
