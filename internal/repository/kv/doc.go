// Package kv implements the persistent key/value store the update pipeline
// keeps its attempt records in.
//
// Values are opaque byte slices grouped into named tables. FileStore keeps
// them in a YAML document on disk; MemoryStore is the in-process
// implementation used by tests and dry runs.
package kv
