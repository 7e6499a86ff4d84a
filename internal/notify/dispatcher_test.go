package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

type delivery struct {
	chatID  int64
	message string
}

// recordingMessenger keeps every delivery and fails for configured chats.
type recordingMessenger struct {
	mu        sync.Mutex
	delivered []delivery
	failures  map[int64]error
}

func (m *recordingMessenger) Notify(_ context.Context, chatID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[chatID]; err != nil {
		return err
	}

	m.delivered = append(m.delivered, delivery{chatID: chatID, message: message})

	return nil
}

type recordingSink struct {
	events []liveness.TransitionEvent
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, event liveness.TransitionEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func subscribers(ids ...int64) []liveness.Subscriber {
	result := make([]liveness.Subscriber, 0, len(ids))
	for _, id := range ids {
		result = append(result, liveness.Subscriber{ChatID: id})
	}

	return result
}

func downEvent() liveness.TransitionEvent {
	return liveness.TransitionEvent{
		DeviceID:   "gate",
		DeviceName: "Gate <1>",
		Address:    "10.0.0.5",
		From:       liveness.StatusUp,
		To:         liveness.StatusDown,
		OccurredAt: time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC),
	}
}

// TestFormatTransition renders DOWN and UP messages in the configured zone.
func TestFormatTransition(t *testing.T) {
	t.Parallel()

	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	event := downEvent()
	require.Equal(t,
		"❌ ALERT <b>Gate &lt;1&gt;</b> DOWN (was UP)\nHost: <code>10.0.0.5</code>\nTime: 2026-10-17 08:00:00",
		FormatTransition(event, jakarta))

	event.From, event.To = liveness.StatusDown, liveness.StatusUp
	require.Equal(t,
		"📷 <b>Gate &lt;1&gt;</b> is back UP ✅ (was DOWN)\nHost: <code>10.0.0.5</code>\nTime: 2026-10-17 01:00:00",
		FormatTransition(event, time.UTC))
}

// TestFormatHeartbeat lists DOWN and UNKNOWN devices or reports all UP.
func TestFormatHeartbeat(t *testing.T) {
	t.Parallel()

	devices := []liveness.Device{{ID: "gate", Name: "Gate"}, {ID: "lobby", Name: "Lobby"}, {ID: "yard", Name: "Yard"}}
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	summary := FormatHeartbeat(devices, liveness.MonitorState{
		"gate":  {Status: liveness.StatusDown},
		"lobby": {Status: liveness.StatusUp},
	}, now, time.UTC)

	require.Contains(t, summary, "Total cameras: 3")
	require.Contains(t, summary, "❌ DOWN: Gate")
	require.Contains(t, summary, "❔ UNKNOWN: Yard")
	require.NotContains(t, summary, "All cameras are UP")

	summary = FormatHeartbeat(devices[:1], liveness.MonitorState{"gate": {Status: liveness.StatusUp}}, now, time.UTC)
	require.Contains(t, summary, "✅ All cameras are UP.")
}

// TestFormatStatus lists devices in inventory order.
func TestFormatStatus(t *testing.T) {
	t.Parallel()

	devices := []liveness.Device{{ID: "gate", Name: "Gate"}, {ID: "lobby", Name: "Lobby"}}
	status := FormatStatus(devices, liveness.MonitorState{"lobby": {Status: liveness.StatusUp}})

	require.Equal(t, "❔ <b>Gate</b> — UNKNOWN\n✅ <b>Lobby</b> — UP", status)
	require.Equal(t, "No cameras configured.", FormatStatus(nil, nil))
}

// TestDispatch_ExactlyOncePerSubscriber sends each event once to each subscriber.
func TestDispatch_ExactlyOncePerSubscriber(t *testing.T) {
	t.Parallel()

	messenger := &recordingMessenger{}
	sink := &recordingSink{}
	d := NewDispatcher(Options{
		Messenger:  messenger,
		Sinks:      []EventSink{sink},
		SenderName: "CCTV",
		Location:   time.UTC,
	})

	up := downEvent()
	up.DeviceID, up.From, up.To = "lobby", liveness.StatusUnknown, liveness.StatusUp

	report := d.Dispatch(context.Background(), []liveness.TransitionEvent{downEvent(), up}, subscribers(1, 2, 3))

	require.Equal(t, 6, report.Sent)
	require.Empty(t, report.Failed)
	require.Len(t, messenger.delivered, 6)
	require.Len(t, sink.events, 2)

	counts := make(map[string]int)
	for _, m := range messenger.delivered {
		counts[fmt.Sprintf("%d/%s", m.chatID, m.message)]++
		require.Contains(t, m.message, "🛰️ CCTV\n\n")
	}

	for key, n := range counts {
		require.Equal(t, 1, n, key)
	}
}

// TestDispatch_NoEventsNoMessages sends nothing when no transition happened.
func TestDispatch_NoEventsNoMessages(t *testing.T) {
	t.Parallel()

	messenger := &recordingMessenger{}
	sink := &recordingSink{}

	report := NewDispatcher(Options{Messenger: messenger, Sinks: []EventSink{sink}}).
		Dispatch(context.Background(), nil, subscribers(1, 2))

	require.Zero(t, report.Sent)
	require.Empty(t, messenger.delivered)
	require.Empty(t, sink.events)
}

// TestDispatch_FailureIsolation keeps delivering after one recipient fails.
func TestDispatch_FailureIsolation(t *testing.T) {
	t.Parallel()

	errNetwork := errors.New("network down")
	messenger := &recordingMessenger{failures: map[int64]error{
		2: errNetwork,
		3: fmt.Errorf("forbidden: %w", ErrRecipientGone),
	}}
	sink := &recordingSink{err: errors.New("broker unavailable")}

	report := NewDispatcher(Options{Messenger: messenger, Sinks: []EventSink{sink}}).
		Dispatch(context.Background(), []liveness.TransitionEvent{downEvent(), downEvent()}, subscribers(1, 2, 3, 4))

	require.Equal(t, 4, report.Sent)
	require.Len(t, report.Failed, 4)
	require.Equal(t, []int64{3}, report.Gone)
	require.ErrorIs(t, report.Failed[0].Err, errNetwork)
	require.Len(t, sink.events, 2)
}

// TestBroadcast prefixes the sender and reports failures.
func TestBroadcast(t *testing.T) {
	t.Parallel()

	messenger := &recordingMessenger{failures: map[int64]error{7: ErrRecipientGone}}
	report := NewDispatcher(Options{Messenger: messenger, SenderName: "Ops & Co"}).
		Broadcast(context.Background(), "hello", subscribers(5, 7))

	require.Equal(t, 1, report.Sent)
	require.Equal(t, []int64{7}, report.Gone)
	require.Equal(t, "🛰️ Ops &amp; Co\n\nhello", messenger.delivered[0].message)
}

// TestNewDispatcher_NilMessenger discards messages instead of panicking.
func TestNewDispatcher_NilMessenger(t *testing.T) {
	t.Parallel()

	report := NewDispatcher(Options{}).Broadcast(context.Background(), "hi", subscribers(1))
	require.Equal(t, 1, report.Sent)
}
