package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/repository/state"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// CycleRunner evaluates one polling cycle.
type CycleRunner interface {
	RunCycle(
		ctx context.Context,
		devices []liveness.Device,
		current liveness.MonitorState,
		now time.Time,
	) (liveness.MonitorState, []liveness.TransitionEvent)
}

// Notifier delivers transitions and free-form messages to subscribers.
type Notifier interface {
	Dispatch(ctx context.Context, events []liveness.TransitionEvent, subscribers []liveness.Subscriber) notify.Report
	Broadcast(ctx context.Context, message string, subscribers []liveness.Subscriber) notify.Report
}

// State is the lifecycle state of a Scheduler.
type State int32

const (
	// StateStopped means Run is not executing.
	StateStopped State = iota
	// StateRunning means Run executes cycles.
	StateRunning
	// StateStopping means shutdown was requested and the last cycle is finishing.
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "invalid"
	}
}

// Options configure a Scheduler.
type Options struct {
	Engine   CycleRunner
	Store    state.Repository
	Registry subscriber.Registry
	Notifier Notifier
	// Devices is the inventory probed each cycle.
	Devices []liveness.Device
	// Interval is the fixed period between cycle starts.
	Interval time.Duration
	// Initial is the state loaded at startup.
	Initial liveness.MonitorState
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler runs polling cycles until its context is cancelled.
type Scheduler struct {
	engine   CycleRunner
	store    state.Repository
	registry subscriber.Registry
	notifier Notifier
	devices  []liveness.Device
	interval time.Duration
	now      func() time.Time

	state atomic.Int32

	// mu guards the fields below, which readers access through Snapshot.
	mu          sync.RWMutex
	current     liveness.MonitorState
	lastCycleAt time.Time
}

var (
	// ErrAlreadyRunning is returned by Run when the scheduler is not stopped.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	errIncompleteOptions = errors.New("engine, store, registry and notifier are required")
	errBadInterval       = errors.New("interval must be positive")
)

// New validates options and creates a stopped scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Engine == nil || opts.Store == nil || opts.Registry == nil || opts.Notifier == nil {
		return nil, errIncompleteOptions
	}

	if opts.Interval <= 0 {
		return nil, errBadInterval
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		engine:   opts.Engine,
		store:    opts.Store,
		registry: opts.Registry,
		notifier: opts.Notifier,
		devices:  slices.Clone(opts.Devices),
		interval: opts.Interval,
		now:      now,
		current:  opts.Initial.Retain(opts.Devices),
	}, nil
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Devices returns the monitored inventory.
func (s *Scheduler) Devices() []liveness.Device {
	return slices.Clone(s.devices)
}

// Snapshot returns a copy of the latest state.
func (s *Scheduler) Snapshot() liveness.MonitorState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current.Clone()
}

// LastCycleAt returns when the latest cycle started. Zero before the first cycle.
func (s *Scheduler) LastCycleAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastCycleAt
}

// Run executes the first cycle immediately and then one cycle per interval.
//
// Ticks that arrive while a cycle runs collapse into a single deferred cycle. When ctx
// is cancelled, the cycle in flight finishes, including its save and notifications,
// before Run returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return ErrAlreadyRunning
	}

	defer s.state.Store(int32(StateStopped))

	// Stopping lasts from cancellation until the cycle in flight completes.
	stop := context.AfterFunc(ctx, func() {
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	})
	defer stop()

	ctx = logger.WithName(ctx, "scheduler")

	// Cycles must not be interrupted halfway by shutdown.
	cycleCtx := context.WithoutCancel(ctx)

	logger.InfoKV(ctx, "Monitoring started", "devices", len(s.devices), "interval", s.interval.String())

	s.RunCycle(cycleCtx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, monitoring stopped")

			return nil
		case <-ticker.C:
			// Both channels may be ready; shutdown wins.
			if ctx.Err() != nil {
				continue
			}

			s.RunCycle(cycleCtx)
		}
	}
}

// RunCycle executes one cycle: probe, save, notify, and drop unreachable subscribers.
// Run calls it on its own goroutine; callers outside Run must not call it concurrently.
func (s *Scheduler) RunCycle(ctx context.Context) {
	ctx = logger.WithKV(ctx, "cycle_id", uuid.NewString())

	startedAt := s.now()
	next, events := s.engine.RunCycle(ctx, s.devices, s.Snapshot(), startedAt)

	s.mu.Lock()
	s.current = next
	s.lastCycleAt = startedAt
	s.mu.Unlock()

	// A failed save keeps the in-memory state; the next cycle tries again.
	if err := s.store.Save(ctx, next); err != nil {
		logger.ErrorKV(ctx, "Failed to save monitor state", "error", err)
	}

	logger.DebugKV(ctx, "Cycle finished", "transitions", len(events), "took", s.now().Sub(startedAt).String())

	if len(events) == 0 {
		return
	}

	subscribers, err := s.registry.List(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to list subscribers, transitions not delivered", "error", err)
		return
	}

	report := s.notifier.Dispatch(ctx, events, subscribers)

	removeGone(ctx, s.registry, report.Gone)
}

// removeGone unsubscribes chats the messenger reported as permanently unreachable.
func removeGone(ctx context.Context, registry subscriber.Registry, gone []int64) {
	for _, chatID := range gone {
		if _, err := registry.Remove(ctx, chatID); err != nil {
			logger.ErrorKV(ctx, "Failed to remove unreachable subscriber", "chat_id", chatID, "error", err)
			continue
		}

		logger.InfoKV(ctx, "Removed unreachable subscriber", "chat_id", chatID)
	}
}
