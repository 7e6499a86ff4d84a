// Package engine runs one polling cycle: it probes every device concurrently and
// folds the results into the liveness state machine in configuration order.
package engine
