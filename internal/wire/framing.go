package wire

import (
	"encoding/binary"

	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// maxFrameLen bounds a single TCP-framed message to keep a corrupt or
// adversarial length prefix from driving an unbounded allocation.
const maxFrameLen = 16 * 1024 * 1024

// WriteTCPFrame prepends a 4-byte big-endian length to payload and
// appends the result to w: TCP is stream-oriented and needs an
// explicit delimiter, unlike UDP's self-delimiting datagrams.
func WriteTCPFrame(w *zbuf.WBuf, payload []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	w.PutRaw(lenBuf[:])
	w.PutRaw(payload)
}

// ReadTCPFrame reads one length-prefixed frame from buf, returning the
// payload and the number of bytes consumed. It returns
// (nil, 0, nil) when buf holds an incomplete frame so the caller can
// wait for more bytes from the stream.
func ReadTCPFrame(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if n > maxFrameLen {
		return nil, 0, &zerrors.ProtocolError{
			Operation: "read TCP frame",
			Offset:    0,
			Message:   "declared frame length exceeds maximum",
		}
	}
	total := 4 + int(n)
	if len(buf) < total {
		return nil, 0, nil
	}
	return buf[4:total], total, nil
}

// UDP datagrams carry exactly one frame's payload with no added
// delimiter; the link layer hands the encoded transport message
// straight to/from the socket.
