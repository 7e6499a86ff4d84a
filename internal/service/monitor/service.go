package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// stateView exposes the scheduler state.
type stateView interface {
	Devices() []liveness.Device
	Snapshot() liveness.MonitorState
	LastCycleAt() time.Time
}

// prober probes one device on demand.
type prober interface {
	Probe(ctx context.Context, device liveness.Device) bool
}

// service answers control and chat queries on top of the running monitor.
// It is unexported to keep the transports decoupled from the implementation.
type service struct {
	// view is the scheduler holding the current state.
	view stateView
	// prober runs manual pings without touching the monitor state.
	prober prober
	// registry stores subscribers and pending requests.
	registry subscriber.Registry
}

func newService(view stateView, prober prober, registry subscriber.Registry) *service {
	return &service{
		view:     view,
		prober:   prober,
		registry: registry,
	}
}

// Devices returns the monitored inventory.
func (s *service) Devices() []liveness.Device {
	return s.view.Devices()
}

// Snapshot returns a copy of the current state.
func (s *service) Snapshot() liveness.MonitorState {
	return s.view.Snapshot()
}

// Overview returns every device with its record and the start of the last cycle.
func (s *service) Overview(context.Context) ([]liveness.DeviceStatus, time.Time) {
	return liveness.Overview(s.view.Devices(), s.view.Snapshot()), s.view.LastCycleAt()
}

// Subscribers returns subscribers and pending access requests.
func (s *service) Subscribers(ctx context.Context) ([]liveness.Subscriber, []liveness.PendingRequest, error) {
	subscribers, err := s.registry.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list subscribers: %w", err)
	}

	pending, err := s.registry.Pending(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending requests: %w", err)
	}

	return subscribers, pending, nil
}

// AddSubscriber subscribes a chat from the control surface.
func (s *service) AddSubscriber(ctx context.Context, chatID int64) (subscriber.AddResult, error) {
	result, err := s.registry.Add(ctx, chatID)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to add subscriber", "chat_id", chatID, "error", err)
		return "", fmt.Errorf("add subscriber: %w", err)
	}

	logger.InfoKV(ctx, "Subscriber added", "chat_id", chatID, "result", result)

	return result, nil
}

// RemoveSubscriber unsubscribes a chat from the control surface.
func (s *service) RemoveSubscriber(ctx context.Context, chatID int64) (subscriber.RemoveResult, error) {
	result, err := s.registry.Remove(ctx, chatID)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to remove subscriber", "chat_id", chatID, "error", err)
		return "", fmt.Errorf("remove subscriber: %w", err)
	}

	logger.InfoKV(ctx, "Subscriber removed", "chat_id", chatID, "result", result)

	return result, nil
}

// ProbeDevice probes the device matching key once. The result does not feed
// the state machine.
func (s *service) ProbeDevice(ctx context.Context, key string) (liveness.Device, bool, error) {
	device, ok := liveness.FindDevice(s.view.Devices(), key)
	if !ok {
		return liveness.Device{}, false, fmt.Errorf("%w: %q", liveness.ErrUnknownDevice, key)
	}

	reachable := s.prober.Probe(ctx, device)
	logger.DebugKV(ctx, "Manual probe", "device", device.ID, "reachable", reachable)

	return device, reachable, nil
}
