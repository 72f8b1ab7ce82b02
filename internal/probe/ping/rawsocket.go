package ping

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// RawPinger sends ICMP echoes over a raw socket. It exists only as the
// explicit-opt-in fallback for systems without a ping binary, since raw
// sockets require elevated privileges.
type RawPinger struct {
	target string
	seq    atomic.Uint32
}

// NewRawPinger validates that a raw ICMP socket can be opened at all, so a
// missing capability surfaces at startup instead of on the first tick.
func NewRawPinger(target string) (*RawPinger, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("raw icmp socket unavailable (needs elevated privileges): %w", err)
	}
	_ = conn.Close()
	return &RawPinger{target: target}, nil
}

// Ping sends one echo and waits for the matching reply within timeout.
func (r *RawPinger) Ping(ctx context.Context, timeout time.Duration) (float64, error) {
	dst, err := net.ResolveIPAddr("ip4", r.target)
	if err != nil {
		return 0, err
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	seq := int(r.seq.Add(1) & 0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("netwatch")},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		reply, err := icmp.ParseMessage(1, buf[:n])
		if err != nil {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if reply.Type != ipv4.ICMPTypeEchoReply || !ok {
			continue
		}
		if echo.ID != id || echo.Seq != seq || peer.String() != dst.String() {
			continue
		}
		return float64(time.Since(start)) / float64(time.Millisecond), nil
	}
}
