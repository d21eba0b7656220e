// Package events implements the gRPC transport for update outcome events.
//
// The service has a single unary method carrying the event as a
// google.protobuf.Struct, so no generated stubs are required. The package
// provides the service description, a server that hands accepted events to a
// Sink, and a client used by the reporter.
package events
