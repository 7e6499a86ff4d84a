// Package nats publishes device transitions to NATS JetStream as CloudEvents.
//
// Events go to <subject>.<device id>; the stream is created on connect when it
// does not exist yet. The event ID doubles as the JetStream message ID, so a
// republished event is deduplicated by the server.
package nats
