// Package monitor wires the camwatch process: configuration, storage, probing,
// scheduling, notifications, event sinks and the gRPC control surface.
package monitor
