package liveness

import "time"

// Device is a monitored camera. Devices are immutable for the process lifetime.
type Device struct {
	// ID is the stable key of the device in persisted state.
	ID string
	// Name is the human-readable name used in notifications.
	Name string
	// Address is the host or host:port passed to the prober.
	Address string
}

// Subscriber is a chat that receives transition notifications.
type Subscriber struct {
	// ChatID identifies the chat on the messaging platform.
	ChatID int64
	// AddedAt is when the subscription was created.
	AddedAt time.Time
}

// PendingRequest is an access request waiting for an administrator decision.
type PendingRequest struct {
	// ChatID identifies the requesting chat.
	ChatID int64
	// DisplayName is the requester's name as reported by the messaging platform.
	DisplayName string
	// RequestedAt is when the request was made.
	RequestedAt time.Time
}
