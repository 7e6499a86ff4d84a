// Package config defines the camwatch configuration file: the camera inventory,
// polling and debounce settings, storage, Telegram, event sinks, the control
// surface and logging. It provides helpers to load, validate and save it in YAML.
//
// Validation failures wrap ErrInvalid and are fatal at startup: the monitor never
// starts with an invalid configuration.
package config
