package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// ExecProber runs the operating system ping command once per probe.
type ExecProber struct {
	timeout time.Duration
	goos    string
	run     func(ctx context.Context, name string, args ...string) error
}

// NewExecProber creates a prober that waits at most timeout for an echo reply.
func NewExecProber(timeout time.Duration) *ExecProber {
	return &ExecProber{
		timeout: timeout,
		goos:    runtime.GOOS,
		run:     runCommand,
	}
}

// Probe sends one echo request. A non-zero exit status means unreachable.
func (p *ExecProber) Probe(ctx context.Context, address string) (bool, error) {
	err := p.run(ctx, "ping", p.args(hostOf(address), remaining(ctx, p.timeout))...)
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || ctx.Err() != nil {
		return false, nil
	}

	return false, fmt.Errorf("run ping: %w", err)
}

// args builds one echo request with a reply deadline.
// On darwin and the BSDs -W takes milliseconds, so the whole run is bounded by
// seconds with -t (or -w on OpenBSD and NetBSD) instead.
func (p *ExecProber) args(host string, wait time.Duration) []string {
	seconds := strconv.Itoa(max(int(math.Ceil(wait.Seconds())), 1))

	switch p.goos {
	case "windows":
		millis := max(wait.Milliseconds(), 1)
		return []string{"-n", "1", "-w", strconv.FormatInt(millis, 10), host}
	case "darwin", "freebsd", "dragonfly":
		return []string{"-c", "1", "-t", seconds, host}
	case "openbsd", "netbsd":
		return []string{"-c", "1", "-w", seconds, host}
	default:
		return []string{"-c", "1", "-W", seconds, host}
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
