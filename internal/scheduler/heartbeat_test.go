package scheduler

import (
	"context"
	"testing"
	"testing/synctest"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

type staticSource struct {
	devices []liveness.Device
	state   liveness.MonitorState
}

func (s staticSource) Devices() []liveness.Device      { return s.devices }
func (s staticSource) Snapshot() liveness.MonitorState { return s.state }

// TestNextOccurrence picks today or tomorrow in the configured zone.
func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	// 00:30 UTC is 07:30 in Jakarta.
	now := time.Date(2026, 10, 17, 0, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 17, 8, 0, 0, 0, jakarta), NextOccurrence(now, 8, 0, jakarta))

	// 01:00 UTC is exactly 08:00 in Jakarta, so the next one is tomorrow.
	now = time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 18, 8, 0, 0, 0, jakarta), NextOccurrence(now, 8, 0, jakarta))
}

// TestHeartbeat_RunSendsDaily broadcasts one summary per day.
func TestHeartbeat_RunSendsDaily(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		notifier := &fakeNotifier{gone: []int64{9}}
		registry := &fakeRegistry{subs: []liveness.Subscriber{{ChatID: 1}, {ChatID: 9}}}

		start := time.Now().UTC()
		h := NewHeartbeat(HeartbeatOptions{
			Source: staticSource{
				devices: []liveness.Device{gate},
				state:   liveness.MonitorState{"gate": {Status: liveness.StatusDown}},
			},
			Registry: registry,
			Notifier: notifier,
			Hour:     (start.Hour() + 1) % 24,
			Minute:   start.Minute(),
			Location: time.UTC,
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- h.Run(ctx) }()

		time.Sleep(time.Hour + time.Second)
		synctest.Wait()
		require.Len(t, notifier.broadcasts, 1)
		require.Contains(t, notifier.broadcasts[0], "❌ DOWN: Gate")
		require.Equal(t, []int64{9}, registry.removed)

		time.Sleep(24 * time.Hour)
		synctest.Wait()
		require.Len(t, notifier.broadcasts, 2)

		cancel()
		require.NoError(t, <-done)
	})
}

// TestHeartbeat_SendWithoutSubscribers sends nothing.
func TestHeartbeat_SendWithoutSubscribers(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	NewHeartbeat(HeartbeatOptions{
		Source:   staticSource{},
		Registry: &fakeRegistry{},
		Notifier: notifier,
	}).Send(context.Background())

	require.Empty(t, notifier.broadcasts)
}
