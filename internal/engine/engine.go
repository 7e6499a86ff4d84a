package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/probe"
)

// Options configure an Engine.
type Options struct {
	// Prober checks device reachability.
	Prober probe.Prober
	// Thresholds drive the state machine.
	Thresholds liveness.Thresholds
	// Timeout bounds one probe. A probe that exceeds it counts as unreachable.
	Timeout time.Duration
	// Concurrency bounds the number of probes in flight.
	Concurrency int
}

// Engine evaluates the liveness of a device inventory.
type Engine struct {
	prober      probe.Prober
	thresholds  liveness.Thresholds
	timeout     time.Duration
	concurrency int
}

var (
	errProberIsNotSet = errors.New("prober is not set")
	errBadTimeout     = errors.New("probe timeout must be positive")
	errProbePanicked  = errors.New("probe panicked")
)

// New validates options and creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Prober == nil {
		return nil, errProberIsNotSet
	}

	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}

	if opts.Timeout <= 0 {
		return nil, errBadTimeout
	}

	return &Engine{
		prober:      opts.Prober,
		thresholds:  opts.Thresholds,
		timeout:     opts.Timeout,
		concurrency: max(opts.Concurrency, 1),
	}, nil
}

// RunCycle probes every device and returns the next state with the transitions it produced.
//
// The current state is not modified. Records of devices missing from the inventory are
// dropped. The result depends only on the probe outcomes, never on their completion order.
func (e *Engine) RunCycle(
	ctx context.Context,
	devices []liveness.Device,
	current liveness.MonitorState,
	now time.Time,
) (liveness.MonitorState, []liveness.TransitionEvent) {
	reachable := e.probeAll(ctx, devices)

	next := make(liveness.MonitorState, len(devices))

	var events []liveness.TransitionEvent

	for i, device := range devices {
		record, event := liveness.Observe(current.RecordFor(device.ID), reachable[i], e.thresholds, now)
		next[device.ID] = record

		if event == nil {
			continue
		}

		event.DeviceName = device.Name
		event.Address = device.Address
		events = append(events, *event)

		logger.InfoKV(ctx, "device changed status",
			"device", device.ID,
			"from", event.From,
			"to", event.To,
		)
	}

	return next, events
}

// Probe checks a single device outside of a cycle. It does not touch any state.
func (e *Engine) Probe(ctx context.Context, device liveness.Device) bool {
	return e.probeOne(ctx, device)
}

func (e *Engine) probeAll(ctx context.Context, devices []liveness.Device) []bool {
	reachable := make([]bool, len(devices))

	var group errgroup.Group

	group.SetLimit(e.concurrency)

	for i, device := range devices {
		group.Go(func() error {
			reachable[i] = e.probeOne(ctx, device)
			return nil
		})
	}

	// Workers never return errors; the barrier is all that matters here.
	_ = group.Wait()

	return reachable
}

type probeResult struct {
	reachable bool
	err       error
}

// probeOne enforces the timeout even for probers that ignore their context.
func (e *Engine) probeOne(ctx context.Context, device liveness.Device) bool {
	probeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan probeResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeResult{err: fmt.Errorf("%w: %v", errProbePanicked, r)}
			}
		}()

		reachable, err := e.prober.Probe(probeCtx, device.Address)
		done <- probeResult{reachable: reachable, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			logger.WarnKV(ctx, "probe failed, counting device as unreachable",
				"device", device.ID,
				"error", result.err,
			)

			return false
		}

		return result.reachable
	case <-probeCtx.Done():
		logger.DebugKV(ctx, "probe timed out", "device", device.ID, "timeout", e.timeout)
		return false
	}
}
