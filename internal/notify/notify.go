package notify

import (
	"context"
	"errors"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
)

// Messenger delivers a text message to one chat.
type Messenger interface {
	Notify(ctx context.Context, chatID int64, message string) error
}

// EventSink receives every transition after subscribers have been notified.
type EventSink interface {
	// Name identifies the sink in logs.
	Name() string
	// Publish forwards the transition.
	Publish(ctx context.Context, event liveness.TransitionEvent) error
}

// ErrRecipientGone is returned by a Messenger when the chat can never receive
// messages again, for instance because the user blocked the bot.
var ErrRecipientGone = errors.New("recipient is gone")

// MessengerFunc adapts a function to the Messenger interface.
type MessengerFunc func(ctx context.Context, chatID int64, message string) error

// Notify calls f.
func (f MessengerFunc) Notify(ctx context.Context, chatID int64, message string) error {
	return f(ctx, chatID, message)
}

// LogMessenger writes messages to the log instead of a chat. It is used when no
// chat transport is configured.
type LogMessenger struct{}

// Notify logs the message.
func (LogMessenger) Notify(ctx context.Context, chatID int64, message string) error {
	logger.InfoKV(ctx, "notification", "chat_id", chatID, "message", message)
	return nil
}

// NopMessenger discards every message.
type NopMessenger struct{}

// Notify does nothing.
func (NopMessenger) Notify(context.Context, int64, string) error { return nil }
