package probe

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/camwatch/internal/config"
)

// TestHostOf strips ports and IPv6 brackets.
func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "10.0.0.5", hostOf("10.0.0.5"))
	require.Equal(t, "10.0.0.5", hostOf("10.0.0.5:554"))
	require.Equal(t, "cam.local", hostOf("cam.local:80"))
	require.Equal(t, "::1", hostOf("[::1]:554"))
	require.Equal(t, "::1", hostOf("::1"))
}

// TestNew selects the adapter by method.
func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New(config.ProbeConfig{Method: config.ProbeMethodPing}, time.Second)
	require.NoError(t, err)
	require.IsType(t, &ExecProber{}, p)

	p, err = New(config.ProbeConfig{Method: config.ProbeMethodICMP}, time.Second)
	require.NoError(t, err)
	require.IsType(t, &ICMPProber{}, p)

	p, err = New(config.ProbeConfig{Method: config.ProbeMethodTCP, TCPPort: 554}, time.Second)
	require.NoError(t, err)
	require.IsType(t, &TCPProber{}, p)

	_, err = New(config.ProbeConfig{Method: "carrier-pigeon"}, time.Second)
	require.Error(t, err)
}

// TestExecProber_Args builds platform specific ping arguments.
func TestExecProber_Args(t *testing.T) {
	t.Parallel()

	p := NewExecProber(2 * time.Second)

	p.goos = "linux"
	require.Equal(t, []string{"-c", "1", "-W", "2", "10.0.0.5"}, p.args("10.0.0.5", 1500*time.Millisecond))
	require.Equal(t, []string{"-c", "1", "-W", "1", "10.0.0.5"}, p.args("10.0.0.5", 0))

	p.goos = "windows"
	require.Equal(t, []string{"-n", "1", "-w", "1500", "10.0.0.5"}, p.args("10.0.0.5", 1500*time.Millisecond))

	p.goos = "darwin"
	require.Equal(t, []string{"-c", "1", "-t", "2", "10.0.0.5"}, p.args("10.0.0.5", 1500*time.Millisecond))

	p.goos = "freebsd"
	require.Equal(t, []string{"-c", "1", "-t", "1", "10.0.0.5"}, p.args("10.0.0.5", 0))

	p.goos = "openbsd"
	require.Equal(t, []string{"-c", "1", "-w", "2", "10.0.0.5"}, p.args("10.0.0.5", 2*time.Second))
}

// TestExecProber_Probe maps command outcomes to reachability.
func TestExecProber_Probe(t *testing.T) {
	t.Parallel()

	var gotArgs []string

	p := NewExecProber(time.Second)
	p.goos = "linux"
	p.run = func(_ context.Context, name string, args ...string) error {
		require.Equal(t, "ping", name)
		gotArgs = args
		return nil
	}

	ok, err := p.Probe(context.Background(), "10.0.0.5:554")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", gotArgs[len(gotArgs)-1])

	p.run = func(context.Context, string, ...string) error {
		return &exec.ExitError{}
	}

	ok, err = p.Probe(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	require.False(t, ok)

	errMissing := errors.New("executable file not found")
	p.run = func(context.Context, string, ...string) error {
		return errMissing
	}

	ok, err = p.Probe(context.Background(), "10.0.0.5")
	require.ErrorIs(t, err, errMissing)
	require.False(t, ok)
}

// TestTCPProber covers an accepting listener, a refused port and a cancelled dial.
func TestTCPProber(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			_ = conn.Close()
		}
	}()

	address := listener.Addr().String()
	p := NewTCPProber(554)

	ok, err := p.Probe(context.Background(), address)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, listener.Close())

	ok, err = p.Probe(context.Background(), address)
	require.NoError(t, err)
	require.True(t, ok, "a refused connection proves the host is up")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err = p.Probe(ctx, "192.0.2.1:554")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestICMPProber_RejectsIPv6 verifies the IPv4 only restriction is reported as an error.
func TestICMPProber_RejectsIPv6(t *testing.T) {
	t.Parallel()

	ok, err := NewICMPProber(false).Probe(context.Background(), "::1")
	require.ErrorIs(t, err, errNoIPv4Address)
	require.False(t, ok)
}
