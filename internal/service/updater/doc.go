// Package updater coordinates the self-update pipeline.
//
// An upgrade resolves a target version, asks the attempt tracker for
// permission, then downloads, verifies and installs the artifact in strict
// sequence. After the agent restarts on the new build, ConfirmUpdate reports
// the success and clears the attempt history.
package updater
