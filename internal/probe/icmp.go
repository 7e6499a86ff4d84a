package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	icmpProtocolIPv4 = 1
	icmpDefaultWait  = 2 * time.Second
)

// ICMPProber sends an ICMP echo request without spawning a process.
//
// Unprivileged mode uses datagram ICMP sockets, which Linux allows when
// net.ipv4.ping_group_range covers the process group. Privileged mode uses raw sockets.
type ICMPProber struct {
	privileged bool
	resolver   *net.Resolver
	seq        atomic.Uint32
}

var errNoIPv4Address = errors.New("no IPv4 address")

// NewICMPProber creates a native ICMP prober.
func NewICMPProber(privileged bool) *ICMPProber {
	return &ICMPProber{
		privileged: privileged,
		resolver:   net.DefaultResolver,
	}
}

// Probe sends one echo request and waits for the matching reply until the context expires.
func (p *ICMPProber) Probe(ctx context.Context, address string) (bool, error) {
	ip, err := p.resolve(ctx, hostOf(address))
	if err != nil {
		return false, err
	}

	network, listenAddr := "udp4", "0.0.0.0"
	if p.privileged {
		network = "ip4:icmp"
	}

	conn, err := icmp.ListenPacket(network, listenAddr)
	if err != nil {
		return false, fmt.Errorf("listen icmp: %w", err)
	}
	defer conn.Close()

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.privileged {
		dst = &net.IPAddr{IP: ip}
	}

	seq := int(p.seq.Add(1) & 0xffff)
	payload := []byte("camwatch")

	request := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: payload,
		},
	}

	wire, err := request.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("marshal echo: %w", err)
	}

	if err = conn.SetDeadline(time.Now().Add(remaining(ctx, icmpDefaultWait))); err != nil {
		return false, fmt.Errorf("set deadline: %w", err)
	}

	if _, err = conn.WriteTo(wire, dst); err != nil {
		return false, fmt.Errorf("send echo: %w", err)
	}

	buf := make([]byte, 1500)

	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline reached without a reply.
			return false, nil
		}

		if !sameIP(peer, ip) {
			continue
		}

		reply, err := icmp.ParseMessage(icmpProtocolIPv4, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}

		// Datagram sockets rewrite the echo ID, so the sequence and payload identify the reply.
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq && bytes.Equal(echo.Data, payload) {
			return true, nil
		}
	}
}

func (p *ICMPProber) resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}

		return nil, fmt.Errorf("%s: %w", host, errNoIPv4Address)
	}

	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	for _, addr := range addrs {
		if ip4 := addr.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", host, errNoIPv4Address)
}

func sameIP(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
