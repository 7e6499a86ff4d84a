package notify

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
)

// Options configure a Dispatcher.
type Options struct {
	// Messenger delivers chat messages. Nil discards them.
	Messenger Messenger
	// Sinks receive every transition after the subscribers.
	Sinks []EventSink
	// SenderName prefixes every message.
	SenderName string
	// Location renders timestamps. Nil means local time.
	Location *time.Location
}

// Dispatcher delivers transitions and broadcasts to subscribers.
type Dispatcher struct {
	messenger Messenger
	sinks     []EventSink
	sender    string
	location  *time.Location
}

// Failure is one undelivered message.
type Failure struct {
	ChatID int64
	Err    error
}

// Report summarizes one delivery round.
type Report struct {
	// Sent counts delivered messages.
	Sent int
	// Failed lists every failed delivery.
	Failed []Failure
	// Gone lists chats that can never be reached again, each once.
	Gone []int64
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	messenger := opts.Messenger
	if messenger == nil {
		messenger = NopMessenger{}
	}

	return &Dispatcher{
		messenger: messenger,
		sinks:     opts.Sinks,
		sender:    opts.SenderName,
		location:  opts.Location,
	}
}

// Location returns the time zone used in messages.
func (d *Dispatcher) Location() *time.Location {
	return location(d.location)
}

// Dispatch sends one message per event to every subscriber, then publishes each
// event to the sinks. Nothing is retried. Zero events send nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, events []liveness.TransitionEvent, subscribers []liveness.Subscriber) Report {
	var report Report

	for _, event := range events {
		d.deliver(ctx, WithSender(d.sender, FormatTransition(event, d.location)), subscribers, &report)
	}

	for _, event := range events {
		d.publish(ctx, event)
	}

	return report
}

// Broadcast sends a free-form message to every subscriber.
func (d *Dispatcher) Broadcast(ctx context.Context, message string, subscribers []liveness.Subscriber) Report {
	var report Report

	d.deliver(ctx, WithSender(d.sender, message), subscribers, &report)

	return report
}

func (d *Dispatcher) deliver(ctx context.Context, message string, subscribers []liveness.Subscriber, report *Report) {
	for _, subscriber := range subscribers {
		err := d.messenger.Notify(ctx, subscriber.ChatID, message)
		if err == nil {
			report.Sent++
			continue
		}

		report.Failed = append(report.Failed, Failure{ChatID: subscriber.ChatID, Err: err})

		if errors.Is(err, ErrRecipientGone) {
			if !slices.Contains(report.Gone, subscriber.ChatID) {
				report.Gone = append(report.Gone, subscriber.ChatID)
			}

			logger.WarnKV(ctx, "subscriber can no longer be reached", "chat_id", subscriber.ChatID, "error", err)

			continue
		}

		logger.ErrorKV(ctx, "failed to deliver notification", "chat_id", subscriber.ChatID, "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, event liveness.TransitionEvent) {
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			logger.ErrorKV(ctx, "failed to publish transition",
				"sink", sink.Name(),
				"device", event.DeviceID,
				"error", err,
			)
		}
	}
}
