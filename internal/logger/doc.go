// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Info, DebugKV, WarnKV, ErrorKV and friends).
//
// Every pipeline stage of the updater receives a context and extracts the
// logger from it, so log lines carry the stage name and target version.
package logger
