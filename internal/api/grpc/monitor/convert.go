package monitor

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

var errMalformedStatus = errors.New("malformed status")

// toStatusStruct converts device statuses into the GetStatus response.
func toStatusStruct(devices []liveness.DeviceStatus, lastCycleAt time.Time) (*structpb.Struct, error) {
	list := make([]any, 0, len(devices))

	for _, d := range devices {
		list = append(list, map[string]any{
			"id":                    d.Device.ID,
			"name":                  d.Device.Name,
			"address":               d.Device.Address,
			"status":                string(d.Record.Status),
			"consecutive_failures":  d.Record.ConsecutiveFailures,
			"consecutive_successes": d.Record.ConsecutiveSuccesses,
			"last_changed_at":       formatTime(d.Record.LastChangedAt),
			"last_checked_at":       formatTime(d.Record.LastCheckedAt),
		})
	}

	return structpb.NewStruct(map[string]any{
		"last_cycle_at": formatTime(lastCycleAt),
		"devices":       list,
	})
}

// FromStatusStruct decodes a GetStatus response.
func FromStatusStruct(s *structpb.Struct) ([]liveness.DeviceStatus, time.Time, error) {
	fields := s.GetFields()

	lastCycleAt, err := parseTime(fields["last_cycle_at"].GetStringValue())
	if err != nil {
		return nil, time.Time{}, err
	}

	values := fields["devices"].GetListValue().GetValues()
	result := make([]liveness.DeviceStatus, 0, len(values))

	for _, value := range values {
		device := value.GetStructValue().GetFields()
		if device == nil {
			return nil, time.Time{}, fmt.Errorf("%w: device entry is not an object", errMalformedStatus)
		}

		st, err := liveness.ParseStatus(device["status"].GetStringValue())
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %w", errMalformedStatus, err)
		}

		changed, err := parseTime(device["last_changed_at"].GetStringValue())
		if err != nil {
			return nil, time.Time{}, err
		}

		checked, err := parseTime(device["last_checked_at"].GetStringValue())
		if err != nil {
			return nil, time.Time{}, err
		}

		id := device["id"].GetStringValue()

		result = append(result, liveness.DeviceStatus{
			Device: liveness.Device{
				ID:      id,
				Name:    device["name"].GetStringValue(),
				Address: device["address"].GetStringValue(),
			},
			Record: liveness.Record{
				DeviceID:             id,
				Status:               st,
				ConsecutiveFailures:  int(device["consecutive_failures"].GetNumberValue()),
				ConsecutiveSuccesses: int(device["consecutive_successes"].GetNumberValue()),
				LastChangedAt:        changed,
				LastCheckedAt:        checked,
			},
		})
	}

	return result, lastCycleAt, nil
}

// toSubscribersStruct converts the registry contents into the ListSubscribers response.
// Chat IDs are encoded as strings: JSON numbers cannot hold every int64 exactly.
func toSubscribersStruct(subscribers []liveness.Subscriber, pending []liveness.PendingRequest) (*structpb.Struct, error) {
	subs := make([]any, 0, len(subscribers))
	for _, s := range subscribers {
		subs = append(subs, map[string]any{
			"chat_id":  fmt.Sprint(s.ChatID),
			"added_at": formatTime(s.AddedAt),
		})
	}

	requests := make([]any, 0, len(pending))
	for _, p := range pending {
		requests = append(requests, map[string]any{
			"chat_id":      fmt.Sprint(p.ChatID),
			"display_name": p.DisplayName,
			"requested_at": formatTime(p.RequestedAt),
		})
	}

	return structpb.NewStruct(map[string]any{
		"subscribers": subs,
		"pending":     requests,
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", errMalformedStatus, err)
	}

	return t, nil
}
