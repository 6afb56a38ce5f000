// Package zbuf implements the session's wire-level primitives: the
// variable-length integer encoding used by every message field, and
// the growable read/write buffers the codec builds frames into.
package zbuf

import "github.com/frankplus/zenoh-pico/internal/zerrors"

// maxZIntBytes bounds a zint to 64 value bits (10 bytes of 7-bit
// groups); an 11th continuation byte is a codec failure mode (zint
// overflow).
const maxZIntBytes = 10

// PutZInt appends the LEB128-style variable-length encoding of v to
// dst and returns the extended slice. Every byte carries 7 value bits
// with the MSB set on every byte but the last, so encoding always uses
// the fewest possible bytes.
func PutZInt(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ZIntLen returns the number of bytes PutZInt would emit for v,
// without allocating.
func ZIntLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// GetZInt decodes a zint from the head of src, returning the value and
// the number of bytes consumed. It returns a *zerrors.ProtocolError if
// src is truncated before a terminating byte or the value would
// overflow 64 bits.
func GetZInt(src []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(src); i++ {
		b := src[i]
		if i >= maxZIntBytes {
			return 0, 0, &zerrors.ProtocolError{
				Operation: "decode zint",
				Offset:    i,
				Message:   "zint exceeds 64 bits",
			}
		}
		// The 10th byte only has room for bit 63; any higher value bit
		// here would otherwise shift out of the uint64 unnoticed.
		if i == maxZIntBytes-1 && b&0x7f > 1 {
			return 0, 0, &zerrors.ProtocolError{
				Operation: "decode zint",
				Offset:    i,
				Message:   "zint exceeds 64 bits",
			}
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, &zerrors.ProtocolError{
		Operation: "decode zint",
		Offset:    len(src),
		Message:   "truncated zint: no terminating byte",
	}
}
