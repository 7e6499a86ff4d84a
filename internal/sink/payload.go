package sink

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// Transition is the wire form of a liveness.TransitionEvent.
type Transition struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Address    string    `json:"address"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTransition converts an event into its wire form.
func NewTransition(event liveness.TransitionEvent) Transition {
	return Transition{
		DeviceID:   event.DeviceID,
		DeviceName: event.DeviceName,
		Address:    event.Address,
		From:       string(event.From),
		To:         string(event.To),
		OccurredAt: event.OccurredAt.UTC(),
	}
}

// Marshal encodes the transition as JSON.
func (t Transition) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// Segment makes a device ID safe to use as one MQTT topic level or NATS subject token.
// Wildcards, separators and whitespace become underscores.
func Segment(id string) string {
	if id == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		default:
			return r
		}
	}, id)
}
