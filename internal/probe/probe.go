package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/oshokin/camwatch/internal/config"
)

// Prober checks reachability of one address.
type Prober interface {
	Probe(ctx context.Context, address string) (bool, error)
}

// Func adapts a function to the Prober interface.
type Func func(ctx context.Context, address string) (bool, error)

// Probe calls f.
func (f Func) Probe(ctx context.Context, address string) (bool, error) {
	return f(ctx, address)
}

// New builds the prober selected by the configuration.
func New(cfg config.ProbeConfig, timeout time.Duration) (Prober, error) {
	switch cfg.Method {
	case config.ProbeMethodPing, "":
		return NewExecProber(timeout), nil
	case config.ProbeMethodICMP:
		return NewICMPProber(cfg.Privileged), nil
	case config.ProbeMethodTCP:
		return NewTCPProber(cfg.TCPPort), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", cfg.Method)
	}
}

// hostOf strips an optional port from the address.
func hostOf(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}

	return strings.Trim(address, "[]")
}

// remaining returns the time left before the context deadline, or fallback.
func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}

	if left := time.Until(deadline); left > 0 {
		return left
	}

	return 0
}
