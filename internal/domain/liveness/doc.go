// Package liveness contains core domain types for camera liveness monitoring.
//
// It defines Device (what is monitored), Record (the debounced liveness of one
// device), MonitorState (all records of one cycle), TransitionEvent (a status
// change) and Subscriber (who is notified), together with Observe, the state
// machine that folds one probe result into a Record.
package liveness
