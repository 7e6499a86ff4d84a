// Package monitor implements the gRPC transport of the camwatch control surface.
//
// The service camwatch.v1.MonitorService is declared by hand on top of the
// protobuf well-known types, so neither side needs generated code. The server
// adapts domain types to those messages and calls into a provided Service.
package monitor
