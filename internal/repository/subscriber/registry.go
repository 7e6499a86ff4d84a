package subscriber

import (
	"context"
	"errors"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// Registry stores subscribers and pending access requests.
// Every mutation is persisted before it returns.
type Registry interface {
	// List returns the subscribers sorted by chat ID.
	List(ctx context.Context) ([]liveness.Subscriber, error)
	// Add subscribes the chat.
	Add(ctx context.Context, chatID int64) (AddResult, error)
	// Remove unsubscribes the chat and drops its pending request, if any.
	Remove(ctx context.Context, chatID int64) (RemoveResult, error)
	// Request records an access request from the chat.
	Request(ctx context.Context, chatID int64, displayName string) (RequestResult, error)
	// Pending returns the pending requests sorted by chat ID.
	Pending(ctx context.Context) ([]liveness.PendingRequest, error)
	// Approve moves a pending request to the subscribers. It reports whether a request existed.
	Approve(ctx context.Context, chatID int64) (bool, error)
	// Deny drops a pending request. It reports whether a request existed.
	Deny(ctx context.Context, chatID int64) (bool, error)
}

// AddResult is the outcome of Registry.Add.
type AddResult string

// RemoveResult is the outcome of Registry.Remove.
type RemoveResult string

// RequestResult is the outcome of Registry.Request.
type RequestResult string

const (
	// Added means the chat was not subscribed before.
	Added AddResult = "added"
	// AlreadyPresent means the chat was already subscribed and nothing changed.
	AlreadyPresent AddResult = "already_present"

	// Removed means the chat was subscribed or pending and is not anymore.
	Removed RemoveResult = "removed"
	// NotPresent means the chat was neither subscribed nor pending.
	NotPresent RemoveResult = "not_present"

	// RequestCreated means a new pending request was recorded.
	RequestCreated RequestResult = "created"
	// AlreadyPending means the chat already waits for a decision.
	AlreadyPending RequestResult = "already_pending"
	// AlreadySubscribed means the chat is subscribed already.
	AlreadySubscribed RequestResult = "already_subscribed"
)

var (
	// ErrCorrupt is returned when the stored registry cannot be decoded.
	ErrCorrupt = errors.New("subscriber registry is corrupt")

	// ErrInvalidChatID is returned for the zero chat ID.
	ErrInvalidChatID = errors.New("chat id must not be zero")
)
