package link

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// MulticastLink is the one-shot, address-carrying channel the scout
// step uses: a Scout message goes out to the
// multicast group, and Hello replies come back from whichever peers
// are listening, each tagged with its source address. It does not
// implement Link: once a peer is chosen, the session opens a
// unicast TCPLink/UDPUnicastLink instead.
type MulticastLink struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
}

// JoinMulticast binds group (e.g. "224.0.0.224:7447") and joins it on
// iface (empty string selects the default interface).
func JoinMulticast(group string, iface string) (*MulticastLink, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, &zerrors.IoError{Operation: "resolve multicast group", Err: err, Details: group}
	}

	lc := net.ListenConfig{Control: platformControl}
	lp, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return nil, &zerrors.IoError{Operation: "listen multicast socket", Err: err, Details: group}
	}
	conn := lp.(*net.UDPConn)

	pc := ipv4.NewPacketConn(conn)
	var ifi *net.Interface
	if iface != "" {
		ifi, err = net.InterfaceByName(iface)
		if err != nil {
			_ = conn.Close()
			return nil, &zerrors.IoError{Operation: "resolve multicast interface", Err: err, Details: iface}
		}
	}
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: addr.IP}); err != nil {
		_ = conn.Close()
		return nil, &zerrors.IoError{Operation: "join multicast group", Err: err, Details: group}
	}

	return &MulticastLink{conn: conn, pc: pc}, nil
}

// SendTo transmits a scout datagram to dest, which is normally the
// multicast group address itself.
func (m *MulticastLink) SendTo(ctx context.Context, payload []byte, dest net.Addr) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := m.conn.SetWriteDeadline(deadline); err != nil {
			return &zerrors.IoError{Operation: "set multicast write deadline", Err: err}
		}
	}
	if _, err := m.conn.WriteTo(payload, dest); err != nil {
		return &zerrors.IoError{Operation: "send scout datagram", Err: err}
	}
	return nil
}

// ReceiveFrom waits for the next Hello reply, returning its sender.
func (m *MulticastLink) ReceiveFrom(ctx context.Context) ([]byte, net.Addr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := m.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, &zerrors.IoError{Operation: "set multicast read deadline", Err: err}
		}
	}
	bufPtr := getBuffer()
	defer putBuffer(bufPtr)
	buf := *bufPtr
	n, src, err := m.conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, &zerrors.IoError{Operation: "receive hello datagram", Err: err}
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, src, nil
}

func (m *MulticastLink) Close() error {
	if err := m.conn.Close(); err != nil {
		return &zerrors.IoError{Operation: "close multicast link", Err: err}
	}
	return nil
}
