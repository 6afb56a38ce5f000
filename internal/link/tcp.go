package link

import (
	"bufio"
	"context"
	"net"

	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// defaultMTU is the batch size zenoh-pico negotiates by default; a
// Frame larger than this must be split across fragmented frames.
const defaultMTU = 65535

// TCPLink is a reliable, stream-oriented Link. Messages are
// length-prefixed on the wire (internal/wire.WriteTCPFrame) since TCP
// has no datagram boundaries of its own.
type TCPLink struct {
	conn net.Conn
	r    *bufio.Reader
}

// DialTCP opens a TCP connection to address (host:port).
func DialTCP(ctx context.Context, address string) (*TCPLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &zerrors.IoError{Operation: "dial tcp link", Err: err, Details: address}
	}
	return &TCPLink{conn: conn, r: bufio.NewReaderSize(conn, defaultMTU)}, nil
}

// NewTCPLink wraps an already-established connection, e.g. one
// accepted by a listening responder.
func NewTCPLink(conn net.Conn) *TCPLink {
	return &TCPLink{conn: conn, r: bufio.NewReaderSize(conn, defaultMTU)}
}

func (l *TCPLink) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := l.conn.SetWriteDeadline(deadline); err != nil {
			return &zerrors.IoError{Operation: "set tcp write deadline", Err: err}
		}
	}
	w := zbuf.NewWBuf(4 + len(payload))
	wire.WriteTCPFrame(w, payload)
	if _, err := l.conn.Write(w.Bytes()); err != nil {
		return &zerrors.IoError{Operation: "send tcp frame", Err: err}
	}
	return nil
}

func (l *TCPLink) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := l.conn.SetReadDeadline(deadline); err != nil {
			return nil, &zerrors.IoError{Operation: "set tcp read deadline", Err: err}
		}
	}
	var lenBuf [4]byte
	if _, err := readFull(l.r, lenBuf[:]); err != nil {
		return nil, &zerrors.IoError{Operation: "read tcp frame length", Err: err}
	}
	n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	payload := make([]byte, n)
	if _, err := readFull(l.r, payload); err != nil {
		return nil, &zerrors.IoError{Operation: "read tcp frame body", Err: err}
	}
	return payload, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (l *TCPLink) MTU() int       { return defaultMTU }
func (l *TCPLink) Reliable() bool { return true }
func (l *TCPLink) Close() error {
	if err := l.conn.Close(); err != nil {
		return &zerrors.IoError{Operation: "close tcp link", Err: err}
	}
	return nil
}

var _ Link = (*TCPLink)(nil)
