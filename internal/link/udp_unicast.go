package link

import (
	"context"
	"net"

	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// defaultUDPMTU keeps a single unicast UDP datagram under the typical
// path MTU, avoiding IP fragmentation.
const defaultUDPMTU = 1472

// UDPUnicastLink is a best-effort, datagram-oriented Link to one
// peer. Each Send/Receive is exactly one datagram: no framing is
// needed since UDP already preserves message boundaries.
type UDPUnicastLink struct {
	conn net.Conn
}

// DialUDP opens a connected UDP socket to address (host:port).
func DialUDP(ctx context.Context, address string) (*UDPUnicastLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, &zerrors.IoError{Operation: "dial udp link", Err: err, Details: address}
	}
	return &UDPUnicastLink{conn: conn}, nil
}

func (l *UDPUnicastLink) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := l.conn.SetWriteDeadline(deadline); err != nil {
			return &zerrors.IoError{Operation: "set udp write deadline", Err: err}
		}
	}
	n, err := l.conn.Write(payload)
	if err != nil {
		return &zerrors.IoError{Operation: "send udp datagram", Err: err}
	}
	if n != len(payload) {
		return &zerrors.IoError{Operation: "send udp datagram", Details: "partial write"}
	}
	return nil
}

func (l *UDPUnicastLink) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := l.conn.SetReadDeadline(deadline); err != nil {
			return nil, &zerrors.IoError{Operation: "set udp read deadline", Err: err}
		}
	}
	bufPtr := getBuffer()
	defer putBuffer(bufPtr)
	buf := *bufPtr
	n, err := l.conn.Read(buf)
	if err != nil {
		return nil, &zerrors.IoError{Operation: "receive udp datagram", Err: err}
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

func (l *UDPUnicastLink) MTU() int       { return defaultUDPMTU }
func (l *UDPUnicastLink) Reliable() bool { return false }
func (l *UDPUnicastLink) Close() error {
	if err := l.conn.Close(); err != nil {
		return &zerrors.IoError{Operation: "close udp link", Err: err}
	}
	return nil
}

var _ Link = (*UDPUnicastLink)(nil)
