// Package wire implements the wire codec: a 1-byte header (high bits
// flags, low bits message id) followed by a body whose layout depends
// on the id, built from zint-prefixed fields (internal/zbuf).
// encode(decode(b)) == b for every well-formed frame.
package wire

// Header flag bits. Each flag gates the presence of one optional
// trailing field and MUST be ignored on decode when that field is
// absent from the body.
const (
	FlagA  byte = 1 << 5 // T_A: Ack (INIT/OPEN Syn vs Ack)
	FlagS  byte = 1 << 6 // T_S: explicit SN resolution present (INIT)
	FlagT2 byte = 1 << 7 // T_T2: lease expressed in seconds, not ms (OPEN)

	FlagK byte = 1 << 5 // Z_K: reskey carries a textual name/suffix
	FlagI byte = 1 << 6 // Z_I: DataInfo (encoding/timestamp) present (DATA)
	FlagD byte = 1 << 7 // Z_D: Drop congestion control (default Block)

	FlagR byte = 1 << 5 // Z_R: reliable frame (vs best-effort)
	FlagS2 byte = 1 << 6 // Z_S: SubInfo present (SUBSCRIBER declaration)
	FlagQ  byte = 1 << 7 // Z_Q: explicit Target present (QUERY)

	FlagT byte = 1 << 5 // Z_T: FINAL reply (REPLY_CONTEXT decorator, no payload follows)
	FlagF byte = 1 << 6 // Z_F: fragmented frame
	FlagN byte = 1 << 7 // Z_N: more fragments follow (only meaningful with Z_F)
)

const idMask byte = 0x1f

// header packs message id (low 5 bits) and flags (high 3 bits) into
// one byte.
func packHeader(id byte, flags byte) byte {
	return (id & idMask) | (flags &^ idMask)
}

func unpackHeader(b byte) (id byte, flags byte) {
	return b & idMask, b &^ idMask
}
