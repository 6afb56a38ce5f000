package zbuf

import "github.com/frankplus/zenoh-pico/internal/zerrors"

// WBuf is a growable write buffer used to serialize messages before
// handing them to a Link. It mirrors the small, allocation-aware
// helper types the rest of the codec builds on.
type WBuf struct {
	buf []byte
}

// NewWBuf returns a WBuf with capacity pre-reserved, avoiding
// reallocation for the common small-message case.
func NewWBuf(capHint int) *WBuf {
	return &WBuf{buf: make([]byte, 0, capHint)}
}

// PutByte appends a single byte.
func (w *WBuf) PutByte(b byte) { w.buf = append(w.buf, b) }

// PutZInt appends v as a zint.
func (w *WBuf) PutZInt(v uint64) { w.buf = PutZInt(w.buf, v) }

// PutBytes appends a zint length prefix followed by b's raw bytes.
func (w *WBuf) PutBytes(b []byte) {
	w.PutZInt(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// PutString appends s as a length-prefixed UTF-8 byte string.
func (w *WBuf) PutString(s string) { w.PutBytes([]byte(s)) }

// PutRaw appends b verbatim, with no length prefix. Used to splice an
// already-encoded sub-buffer (e.g. a ResKey built ahead of a header
// byte whose flags depend on it) into a larger one.
func (w *WBuf) PutRaw(b []byte) { w.buf = append(w.buf, b...) }

// Bytes returns the buffer's contents. The returned slice aliases the
// WBuf's storage and must not be retained across further writes.
func (w *WBuf) Bytes() []byte { return w.buf }

// Len reports the number of bytes written so far.
func (w *WBuf) Len() int { return len(w.buf) }

// RBuf is a read cursor over a decoded frame. Every Get* method
// advances the cursor and returns a *zerrors.ProtocolError on
// truncation.
type RBuf struct {
	buf []byte
	pos int
}

// NewRBuf wraps b for sequential decoding. b is not copied.
func NewRBuf(b []byte) *RBuf { return &RBuf{buf: b} }

// Remaining reports how many bytes are left to read.
func (r *RBuf) Remaining() int { return len(r.buf) - r.pos }

// Pos reports the current read offset, used for error reporting.
func (r *RBuf) Pos() int { return r.pos }

// GetByte reads and returns a single byte.
func (r *RBuf) GetByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, &zerrors.ProtocolError{Operation: "read byte", Offset: r.pos, Message: "truncated buffer"}
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// GetZInt reads a zint.
func (r *RBuf) GetZInt() (uint64, error) {
	v, n, err := GetZInt(r.buf[r.pos:])
	if err != nil {
		if pe, ok := err.(*zerrors.ProtocolError); ok {
			pe.Offset += r.pos
		}
		return 0, err
	}
	r.pos += n
	return v, nil
}

// GetBytes reads a zint length prefix followed by that many raw
// bytes. The returned slice aliases the RBuf's backing array.
func (r *RBuf) GetBytes() ([]byte, error) {
	n, err := r.GetZInt()
	if err != nil {
		return nil, err
	}
	if uint64(r.Remaining()) < n {
		return nil, &zerrors.ProtocolError{
			Operation: "read bytes",
			Offset:    r.pos,
			Message:   "truncated buffer: declared length exceeds remaining data",
		}
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// GetString reads a length-prefixed UTF-8 byte string.
func (r *RBuf) GetString() (string, error) {
	b, err := r.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
