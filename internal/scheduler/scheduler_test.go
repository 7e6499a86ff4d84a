package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

var gate = liveness.Device{ID: "gate", Name: "Gate", Address: "10.0.0.5"}

type cycleFunc func(ctx context.Context, devices []liveness.Device, current liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent)

func (f cycleFunc) RunCycle(ctx context.Context, devices []liveness.Device, current liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
	return f(ctx, devices, current, now)
}

type fakeStore struct {
	mu    sync.Mutex
	saves []liveness.MonitorState
	err   error
}

func (s *fakeStore) Load(context.Context) (liveness.MonitorState, error) {
	return nil, errors.New("not used")
}

func (s *fakeStore) Save(_ context.Context, st liveness.MonitorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves = append(s.saves, st.Clone())

	return s.err
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.saves)
}

type fakeRegistry struct {
	mu      sync.Mutex
	subs    []liveness.Subscriber
	removed []int64
	listed  int
}

func (r *fakeRegistry) List(context.Context) ([]liveness.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listed++

	return append([]liveness.Subscriber(nil), r.subs...), nil
}

func (r *fakeRegistry) Add(context.Context, int64) (subscriber.AddResult, error) {
	return subscriber.Added, nil
}

func (r *fakeRegistry) Remove(_ context.Context, chatID int64) (subscriber.RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removed = append(r.removed, chatID)

	return subscriber.Removed, nil
}

func (r *fakeRegistry) Request(context.Context, int64, string) (subscriber.RequestResult, error) {
	return subscriber.RequestCreated, nil
}

func (r *fakeRegistry) Pending(context.Context) ([]liveness.PendingRequest, error) { return nil, nil }

func (r *fakeRegistry) Approve(context.Context, int64) (bool, error) { return false, nil }

func (r *fakeRegistry) Deny(context.Context, int64) (bool, error) { return false, nil }

type fakeNotifier struct {
	mu         sync.Mutex
	dispatched [][]liveness.TransitionEvent
	broadcasts []string
	gone       []int64
}

func (n *fakeNotifier) Dispatch(_ context.Context, events []liveness.TransitionEvent, _ []liveness.Subscriber) notify.Report {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.dispatched = append(n.dispatched, events)

	return notify.Report{Gone: n.gone}
}

func (n *fakeNotifier) Broadcast(_ context.Context, message string, _ []liveness.Subscriber) notify.Report {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.broadcasts = append(n.broadcasts, message)

	return notify.Report{Sent: 1, Gone: n.gone}
}

func newScheduler(t *testing.T, engine CycleRunner, store *fakeStore, registry *fakeRegistry, notifier *fakeNotifier) *Scheduler {
	t.Helper()

	s, err := New(Options{
		Engine:   engine,
		Store:    store,
		Registry: registry,
		Notifier: notifier,
		Devices:  []liveness.Device{gate},
		Interval: 10 * time.Second,
	})
	require.NoError(t, err)

	return s
}

// quietCycle marks the device UP without producing transitions.
func quietCycle(_ context.Context, _ []liveness.Device, _ liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
	return liveness.MonitorState{"gate": {DeviceID: "gate", Status: liveness.StatusUp, LastCheckedAt: now}}, nil
}

// TestNew rejects incomplete options.
func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.ErrorIs(t, err, errIncompleteOptions)

	_, err = New(Options{
		Engine:   cycleFunc(quietCycle),
		Store:    &fakeStore{},
		Registry: &fakeRegistry{},
		Notifier: &fakeNotifier{},
	})
	require.ErrorIs(t, err, errBadInterval)
}

// TestRun_FirstCycleImmediateThenEveryInterval checks the cadence of cycles.
func TestRun_FirstCycleImmediateThenEveryInterval(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var starts []time.Duration

		begin := time.Now()
		engine := cycleFunc(func(ctx context.Context, d []liveness.Device, c liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
			starts = append(starts, time.Since(begin))
			return quietCycle(ctx, d, c, now)
		})

		store := &fakeStore{}
		s := newScheduler(t, engine, store, &fakeRegistry{}, &fakeNotifier{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- s.Run(ctx) }()

		time.Sleep(35 * time.Second)
		synctest.Wait()
		require.Equal(t, StateRunning, s.State())

		cancel()
		require.NoError(t, <-done)

		require.Equal(t, []time.Duration{0, 10 * time.Second, 20 * time.Second, 30 * time.Second}, starts)
		require.Equal(t, 4, store.count())
		require.Equal(t, StateStopped, s.State())
		require.Equal(t, liveness.StatusUp, s.Snapshot()["gate"].Status)
	})
}

// TestRun_CyclesNeverOverlap coalesces ticks that arrive during a long cycle.
func TestRun_CyclesNeverOverlap(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			inFlight, peak atomic.Int32
			starts         []time.Duration
		)

		begin := time.Now()
		engine := cycleFunc(func(ctx context.Context, d []liveness.Device, c liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)

			if n > peak.Load() {
				peak.Store(n)
			}

			starts = append(starts, time.Since(begin))
			time.Sleep(25 * time.Second)

			return quietCycle(ctx, d, c, now)
		})

		s := newScheduler(t, engine, &fakeStore{}, &fakeRegistry{}, &fakeNotifier{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- s.Run(ctx) }()

		time.Sleep(60 * time.Second)
		cancel()
		require.NoError(t, <-done)

		require.Equal(t, int32(1), peak.Load())
		require.Equal(t, []time.Duration{0, 25 * time.Second, 50 * time.Second}, starts)
	})
}

// TestRun_ShutdownCompletesInFlightCycle lets the running cycle save and notify.
func TestRun_ShutdownCompletesInFlightCycle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		engine := cycleFunc(func(ctx context.Context, _ []liveness.Device, _ liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
			time.Sleep(5 * time.Second)

			if ctx.Err() != nil {
				panic("cycle context must survive shutdown")
			}

			return liveness.MonitorState{"gate": {DeviceID: "gate", Status: liveness.StatusDown}},
				[]liveness.TransitionEvent{{DeviceID: "gate", From: liveness.StatusUnknown, To: liveness.StatusDown, OccurredAt: now}}
		})

		store := &fakeStore{}
		notifier := &fakeNotifier{}
		s := newScheduler(t, engine, store, &fakeRegistry{subs: []liveness.Subscriber{{ChatID: 1}}}, notifier)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		begin := time.Now()

		go func() { done <- s.Run(ctx) }()

		time.Sleep(time.Second)
		cancel()

		synctest.Wait()
		require.Equal(t, StateStopping, s.State(), "the cycle is still running")

		require.NoError(t, <-done)
		require.Equal(t, StateStopped, s.State())
		require.Equal(t, 5*time.Second, time.Since(begin))
		require.Equal(t, 1, store.count())
		require.Len(t, notifier.dispatched, 1)
	})
}

// TestRun_AlreadyRunning refuses a second concurrent Run.
func TestRun_AlreadyRunning(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		s := newScheduler(t, cycleFunc(quietCycle), &fakeStore{}, &fakeRegistry{}, &fakeNotifier{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- s.Run(ctx) }()

		synctest.Wait()
		require.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)

		cancel()
		require.NoError(t, <-done)

		// A stopped scheduler can be started again.
		ctx, cancel = context.WithCancel(context.Background())
		cancel()
		require.NoError(t, s.Run(ctx))
	})
}

// TestRunCycle_SaveFailureKeepsState continues from the in-memory state.
func TestRunCycle_SaveFailureKeepsState(t *testing.T) {
	t.Parallel()

	var seen []liveness.MonitorState

	engine := cycleFunc(func(_ context.Context, _ []liveness.Device, current liveness.MonitorState, _ time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
		seen = append(seen, current)

		record := current.RecordFor("gate")
		record.ConsecutiveFailures++

		return liveness.MonitorState{"gate": record}, nil
	})

	store := &fakeStore{err: errors.New("disk full")}
	s := newScheduler(t, engine, store, &fakeRegistry{}, &fakeNotifier{})

	s.RunCycle(context.Background())
	s.RunCycle(context.Background())

	require.Equal(t, 2, store.count())
	require.Equal(t, 1, seen[1]["gate"].ConsecutiveFailures)
	require.Equal(t, 2, s.Snapshot()["gate"].ConsecutiveFailures)
}

// TestRunCycle_NoTransitionsNoDispatch skips the registry and notifier on quiet cycles.
func TestRunCycle_NoTransitionsNoDispatch(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{subs: []liveness.Subscriber{{ChatID: 1}}}
	notifier := &fakeNotifier{}
	s := newScheduler(t, cycleFunc(quietCycle), &fakeStore{}, registry, notifier)

	s.RunCycle(context.Background())

	require.Zero(t, registry.listed)
	require.Empty(t, notifier.dispatched)
	require.False(t, s.LastCycleAt().IsZero())
}

// TestRunCycle_RemovesGoneSubscribers drops chats reported as unreachable.
func TestRunCycle_RemovesGoneSubscribers(t *testing.T) {
	t.Parallel()

	engine := cycleFunc(func(_ context.Context, _ []liveness.Device, _ liveness.MonitorState, now time.Time) (liveness.MonitorState, []liveness.TransitionEvent) {
		return liveness.MonitorState{"gate": {DeviceID: "gate", Status: liveness.StatusUp}},
			[]liveness.TransitionEvent{{DeviceID: "gate", From: liveness.StatusUnknown, To: liveness.StatusUp, OccurredAt: now}}
	})

	registry := &fakeRegistry{subs: []liveness.Subscriber{{ChatID: 1}, {ChatID: 2}}}
	notifier := &fakeNotifier{gone: []int64{2}}
	s := newScheduler(t, engine, &fakeStore{}, registry, notifier)

	s.RunCycle(context.Background())

	require.Len(t, notifier.dispatched, 1)
	require.Equal(t, []int64{2}, registry.removed)
}

// TestNew_DropsRecordsOfUnknownDevices retains only configured devices from the initial state.
func TestNew_DropsRecordsOfUnknownDevices(t *testing.T) {
	t.Parallel()

	s, err := New(Options{
		Engine:   cycleFunc(quietCycle),
		Store:    &fakeStore{},
		Registry: &fakeRegistry{},
		Notifier: &fakeNotifier{},
		Devices:  []liveness.Device{gate},
		Interval: time.Second,
		Initial: liveness.MonitorState{
			"gate":    {DeviceID: "gate", Status: liveness.StatusDown},
			"retired": {DeviceID: "retired", Status: liveness.StatusUp},
		},
	})
	require.NoError(t, err)

	snapshot := s.Snapshot()
	require.Len(t, snapshot, 1)
	require.Equal(t, liveness.StatusDown, snapshot["gate"].Status)
}
