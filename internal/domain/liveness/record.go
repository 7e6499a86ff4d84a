package liveness

import (
	"errors"
	"fmt"
	"time"
)

// Thresholds holds the debounce configuration of the state machine.
type Thresholds struct {
	// Up is the number of consecutive successful probes required to declare a device UP.
	Up int
	// Down is the number of consecutive failed probes required to declare a device DOWN.
	Down int
}

// errInvalidThreshold is returned by Thresholds.Validate.
var errInvalidThreshold = errors.New("threshold must be at least 1")

// Validate checks that both thresholds are at least one.
func (t Thresholds) Validate() error {
	if t.Up < 1 {
		return fmt.Errorf("up: %w", errInvalidThreshold)
	}

	if t.Down < 1 {
		return fmt.Errorf("down: %w", errInvalidThreshold)
	}

	return nil
}

// Record is the liveness record of one device.
type Record struct {
	// DeviceID is the key of the device this record belongs to.
	DeviceID string
	// Status is the debounced status.
	Status Status
	// ConsecutiveFailures counts failed probes since the last success or transition.
	ConsecutiveFailures int
	// ConsecutiveSuccesses counts successful probes since the last failure or transition.
	ConsecutiveSuccesses int
	// LastChangedAt is when Status last changed. Zero while UNKNOWN.
	LastChangedAt time.Time
	// LastCheckedAt is the timestamp of the last cycle that probed the device.
	LastCheckedAt time.Time
}

// NewRecord returns the record of a device that has never been observed.
func NewRecord(deviceID string) Record {
	return Record{
		DeviceID: deviceID,
		Status:   StatusUnknown,
	}
}

// TransitionEvent describes one status change detected during a cycle.
type TransitionEvent struct {
	DeviceID   string
	DeviceName string
	Address    string
	From       Status
	To         Status
	OccurredAt time.Time
}

// Observe folds one probe result into the record and returns the updated record.
// The returned event is non-nil only when the status changed.
func Observe(record Record, reachable bool, thresholds Thresholds, now time.Time) (Record, *TransitionEvent) {
	next := record
	next.LastCheckedAt = now

	var target Status

	if reachable {
		next.ConsecutiveSuccesses++
		next.ConsecutiveFailures = 0

		if next.Status != StatusUp && next.ConsecutiveSuccesses >= thresholds.Up {
			target = StatusUp
		}
	} else {
		next.ConsecutiveFailures++
		next.ConsecutiveSuccesses = 0

		if next.Status != StatusDown && next.ConsecutiveFailures >= thresholds.Down {
			target = StatusDown
		}
	}

	if target == "" {
		return next, nil
	}

	event := &TransitionEvent{
		DeviceID:   record.DeviceID,
		From:       next.Status,
		To:         target,
		OccurredAt: now,
	}

	next.Status = target
	next.ConsecutiveFailures = 0
	next.ConsecutiveSuccesses = 0
	next.LastChangedAt = now

	return next, event
}

// MonitorState maps device IDs to their liveness records.
type MonitorState map[string]Record

// Clone returns a copy of the state that shares nothing with the original.
func (s MonitorState) Clone() MonitorState {
	cloned := make(MonitorState, len(s))
	for id, record := range s {
		cloned[id] = record
	}

	return cloned
}

// RecordFor returns the record of the device, or a fresh UNKNOWN record if none exists.
func (s MonitorState) RecordFor(deviceID string) Record {
	if record, ok := s[deviceID]; ok {
		record.DeviceID = deviceID
		return record
	}

	return NewRecord(deviceID)
}

// Retain drops records of devices that are not in the provided list.
func (s MonitorState) Retain(devices []Device) MonitorState {
	kept := make(MonitorState, len(devices))

	for _, device := range devices {
		if record, ok := s[device.ID]; ok {
			kept[device.ID] = record
		}
	}

	return kept
}
