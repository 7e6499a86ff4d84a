// Package notify turns status transitions into chat messages and delivers them to
// every subscriber exactly once, then hands the transitions to the configured event
// sinks. A failure for one recipient or sink never affects the others.
package notify
