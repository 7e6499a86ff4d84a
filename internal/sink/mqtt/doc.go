// Package mqtt publishes device transitions to an MQTT broker.
//
// Each transition is published retained on <prefix>/devices/<id>/status, so new
// subscribers immediately learn the last known status of every device. The client
// announces itself on <prefix>/status and leaves an "offline" last will there.
package mqtt
