package scheduler

import (
	"context"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// StateSource exposes the monitored inventory and its latest state.
type StateSource interface {
	Devices() []liveness.Device
	Snapshot() liveness.MonitorState
}

// HeartbeatOptions configure a Heartbeat.
type HeartbeatOptions struct {
	Source   StateSource
	Registry subscriber.Registry
	Notifier Notifier
	// Hour and Minute are the local wall clock time of the summary.
	Hour, Minute int
	// Location is the time zone of Hour and Minute.
	Location *time.Location
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Heartbeat broadcasts a daily summary of the device states.
type Heartbeat struct {
	opts HeartbeatOptions
}

// NewHeartbeat creates a heartbeat.
func NewHeartbeat(opts HeartbeatOptions) *Heartbeat {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &Heartbeat{opts: opts}
}

// Run sends the summary every day at the configured time until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "heartbeat")

	for {
		next := NextOccurrence(h.opts.Now(), h.opts.Hour, h.opts.Minute, h.opts.Location)
		logger.DebugKV(ctx, "Next heartbeat scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(h.opts.Now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			h.Send(ctx)
		}
	}
}

// Send broadcasts one summary now. Nothing is sent without subscribers.
func (h *Heartbeat) Send(ctx context.Context) {
	subscribers, err := h.opts.Registry.List(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to list subscribers for heartbeat", "error", err)
		return
	}

	if len(subscribers) == 0 {
		return
	}

	summary := notify.FormatHeartbeat(h.opts.Source.Devices(), h.opts.Source.Snapshot(), h.opts.Now(), h.opts.Location)
	report := h.opts.Notifier.Broadcast(ctx, summary, subscribers)

	logger.InfoKV(ctx, "Heartbeat sent", "delivered", report.Sent, "failed", len(report.Failed))

	removeGone(ctx, h.opts.Registry, report.Gone)
}

// NextOccurrence returns the first time strictly after now whose wall clock in loc is hour:minute.
func NextOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}

	return next
}
