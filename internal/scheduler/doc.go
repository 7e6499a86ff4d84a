// Package scheduler drives polling cycles at a fixed interval and sends the daily
// heartbeat summary.
//
// A cycle probes every device, saves the new state, and notifies subscribers of the
// transitions it found. Cycles never overlap, and the cycle in flight when shutdown
// is requested is allowed to finish.
package scheduler
