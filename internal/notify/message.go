package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// TimeLayout renders timestamps in messages.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTransition renders the chat message of one transition. Names and addresses are HTML escaped.
func FormatTransition(event liveness.TransitionEvent, loc *time.Location) string {
	name := html.EscapeString(displayName(event.DeviceName, event.DeviceID))

	var headline string

	switch event.To {
	case liveness.StatusDown:
		headline = fmt.Sprintf("❌ ALERT <b>%s</b> DOWN (was %s)", name, event.From)
	case liveness.StatusUp:
		headline = fmt.Sprintf("📷 <b>%s</b> is back UP ✅ (was %s)", name, event.From)
	default:
		headline = fmt.Sprintf("❔ <b>%s</b> is %s (was %s)", name, event.To, event.From)
	}

	return fmt.Sprintf("%s\nHost: <code>%s</code>\nTime: %s",
		headline,
		html.EscapeString(event.Address),
		event.OccurredAt.In(location(loc)).Format(TimeLayout),
	)
}

// FormatStatus renders one line per device in inventory order.
func FormatStatus(devices []liveness.Device, state liveness.MonitorState) string {
	if len(devices) == 0 {
		return "No cameras configured."
	}

	lines := make([]string, 0, len(devices))

	for _, device := range devices {
		status := state.RecordFor(device.ID).Status
		lines = append(lines, fmt.Sprintf("%s <b>%s</b> — %s",
			status.Emoji(),
			html.EscapeString(displayName(device.Name, device.ID)),
			status,
		))
	}

	return strings.Join(lines, "\n")
}

// FormatHeartbeat renders the daily summary.
func FormatHeartbeat(devices []liveness.Device, state liveness.MonitorState, now time.Time, loc *time.Location) string {
	var down, unknown []string

	for _, device := range devices {
		name := html.EscapeString(displayName(device.Name, device.ID))

		switch state.RecordFor(device.ID).Status {
		case liveness.StatusDown:
			down = append(down, name)
		case liveness.StatusUnknown:
			unknown = append(unknown, name)
		}
	}

	lines := []string{
		fmt.Sprintf("🫀 <b>Daily Heartbeat</b> — %s", now.In(location(loc)).Format(TimeLayout)),
		fmt.Sprintf("Monitor is running. Total cameras: %d", len(devices)),
	}

	if len(down) > 0 {
		lines = append(lines, "❌ DOWN: "+strings.Join(down, ", "))
	}

	if len(unknown) > 0 {
		lines = append(lines, "❔ UNKNOWN: "+strings.Join(unknown, ", "))
	}

	if len(down) == 0 && len(unknown) == 0 {
		lines = append(lines, "✅ All cameras are UP.")
	}

	return strings.Join(lines, "\n")
}

// WithSender prefixes a message with the sender banner.
func WithSender(sender, message string) string {
	if sender == "" {
		return message
	}

	return fmt.Sprintf("🛰️ %s\n\n%s", html.EscapeString(sender), message)
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}

	return id
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}

	return loc
}
