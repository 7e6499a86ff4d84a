// Package subscriber implements the registry of chats that receive notifications,
// together with the access requests waiting for an administrator decision.
package subscriber
