package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
)

// TCPProber opens a TCP connection to the device.
// Cameras that block ICMP still answer on their RTSP or HTTP port.
type TCPProber struct {
	port   int
	dialer *net.Dialer
}

// NewTCPProber creates a prober that dials port when the address carries none.
func NewTCPProber(port int) *TCPProber {
	return &TCPProber{
		port:   port,
		dialer: new(net.Dialer),
	}
}

// Probe reports whether the device accepted or actively refused the connection.
// A refusal proves the host is up even though nothing listens on the port.
func (p *TCPProber) Probe(ctx context.Context, address string) (bool, error) {
	target := address
	if _, _, err := net.SplitHostPort(address); err != nil {
		target = net.JoinHostPort(hostOf(address), strconv.Itoa(p.port))
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return errors.Is(err, syscall.ECONNREFUSED), nil
	}

	_ = conn.Close()

	return true, nil
}
