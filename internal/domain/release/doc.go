// Package release contains the core domain types of the update pipeline.
//
// It defines dotted numeric versions and their ordering, the deterministic
// release descriptor that names every artifact, and the attempt record that
// bounds retries for a single target version.
package release
