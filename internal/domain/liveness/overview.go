package liveness

import "errors"

// ErrUnknownDevice is returned when a device ID or name is not in the inventory.
var ErrUnknownDevice = errors.New("unknown device")

// DeviceStatus pairs a device with its current record.
type DeviceStatus struct {
	Device Device
	Record Record
}

// Overview lists every device with its record, in inventory order.
// Devices without a record are reported UNKNOWN.
func Overview(devices []Device, state MonitorState) []DeviceStatus {
	result := make([]DeviceStatus, 0, len(devices))

	for _, device := range devices {
		result = append(result, DeviceStatus{
			Device: device,
			Record: state.RecordFor(device.ID),
		})
	}

	return result
}

// FindDevice looks a device up by ID, falling back to its display name.
func FindDevice(devices []Device, key string) (Device, bool) {
	for _, device := range devices {
		if device.ID == key {
			return device, true
		}
	}

	for _, device := range devices {
		if device.Name == key {
			return device, true
		}
	}

	return Device{}, false
}
