package sink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// TestSegment replaces characters with special meaning in topics and subjects.
func TestSegment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "gate", Segment("gate"))
	require.Equal(t, "front_gate_cam_1", Segment("front gate/cam.1"))
	require.Equal(t, "a_b_c_d", Segment("a+b#c*d"))
	require.Equal(t, "_", Segment(""))
}

// TestNewTransition encodes the event fields.
func TestNewTransition(t *testing.T) {
	t.Parallel()

	jakarta := time.FixedZone("WIB", 7*3600)
	payload, err := NewTransition(liveness.TransitionEvent{
		DeviceID:   "gate",
		DeviceName: "Gate",
		Address:    "10.0.0.5",
		From:       liveness.StatusUp,
		To:         liveness.StatusDown,
		OccurredAt: time.Date(2026, 10, 17, 8, 0, 0, 0, jakarta),
	}).Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "DOWN", decoded["to"])
	require.Equal(t, "UP", decoded["from"])
	require.Equal(t, "2026-10-17T01:00:00Z", decoded["occurred_at"])
}
