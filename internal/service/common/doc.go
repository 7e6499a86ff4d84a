// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC client for the camwatch control API with
// timeouts and a utility to detect the current system actor (user@host) that
// is attached to mutating calls for the audit log.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
