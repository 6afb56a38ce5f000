package wire

import (
	"fmt"

	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// TransportMessage is the outer, session-layer message family: the
// scout/handshake and frame-carrying messages.
type TransportMessage interface {
	transportMessage()
}

// Scout is broadcast to the multicast group before any link exists,
// looking for peers matching the What bitmask.
// It carries no pid of its own: the sender is anonymous until HELLO.
type Scout struct {
	Version byte
	What    uint64
}

func (Scout) transportMessage() {}

// Hello answers a Scout (or is broadcast unsolicited by a router),
// advertising the responder's identity and the locators it can be
// reached on. The client picks the first locator from the first HELLO
// it receives.
type Hello struct {
	Version  byte
	WhatAmI  uint64
	ZenohID  []byte
	Locators []string
}

func (Hello) transportMessage() {}

// InitSyn opens a handshake, proposing a protocol version, the
// sender's role, its peer id, and (optionally) a non-default SN
// resolution.
type InitSyn struct {
	Version      byte
	WhatAmI      uint64
	ZenohID      []byte
	SNResolution uint64 // 0 means "use the default"; only encoded when non-zero
}

func (InitSyn) transportMessage() {}

// InitAck is the responder's half of the handshake: it echoes or
// narrows the proposal and returns an opaque cookie the initiator must
// present unmodified in OpenSyn.
type InitAck struct {
	Version      byte
	WhatAmI      uint64
	ZenohID      []byte
	SNResolution uint64
	Cookie       []byte
}

func (InitAck) transportMessage() {}

// OpenSyn completes the handshake's second round trip, proposing a
// lease and initial SN and returning the cookie unmodified.
type OpenSyn struct {
	Lease      uint64
	LeaseIsSec bool
	InitialSN  uint64
	Cookie     []byte
}

func (OpenSyn) transportMessage() {}

// OpenAck accepts the session, fixing the lease and the responder's
// own initial SN.
type OpenAck struct {
	Lease      uint64
	LeaseIsSec bool
	InitialSN  uint64
}

func (OpenAck) transportMessage() {}

// Close tears a session down, either gracefully (peer acknowledges
// first) or abruptly.
type Close struct {
	Reason CloseReason
}

func (Close) transportMessage() {}

// KeepAlive carries no payload; its receipt alone resets the peer's
// lease timer.
type KeepAlive struct{}

func (KeepAlive) transportMessage() {}

// Frame wraps a reliable or best-effort sequence of zenoh messages in
// a single SN-stamped envelope, optionally one fragment of a larger
// message.
type Frame struct {
	Reliable bool
	SN       uint64
	Fragment bool
	More     bool // valid only when Fragment is set
	Payload  []byte
}

func (Frame) transportMessage() {}

// EncodeTransportMessage appends m's header and body to w.
func EncodeTransportMessage(w *zbuf.WBuf, m TransportMessage) error {
	switch v := m.(type) {
	case Scout:
		w.PutByte(packHeader(IDScout, 0))
		w.PutByte(v.Version)
		w.PutZInt(v.What)
	case Hello:
		w.PutByte(packHeader(IDHello, 0))
		w.PutByte(v.Version)
		w.PutZInt(v.WhatAmI)
		w.PutBytes(v.ZenohID)
		w.PutZInt(uint64(len(v.Locators)))
		for _, loc := range v.Locators {
			w.PutString(loc)
		}
	case InitSyn:
		flags := byte(0)
		if v.SNResolution != 0 {
			flags |= FlagS
		}
		w.PutByte(packHeader(IDInit, flags))
		w.PutByte(v.Version)
		w.PutZInt(v.WhatAmI)
		w.PutBytes(v.ZenohID)
		if flags&FlagS != 0 {
			w.PutZInt(v.SNResolution)
		}
	case InitAck:
		flags := FlagA
		if v.SNResolution != 0 {
			flags |= FlagS
		}
		w.PutByte(packHeader(IDInit, flags))
		w.PutByte(v.Version)
		w.PutZInt(v.WhatAmI)
		w.PutBytes(v.ZenohID)
		if flags&FlagS != 0 {
			w.PutZInt(v.SNResolution)
		}
		w.PutBytes(v.Cookie)
	case OpenSyn:
		flags := byte(0)
		if v.LeaseIsSec {
			flags |= FlagT2
		}
		w.PutByte(packHeader(IDOpen, flags))
		w.PutZInt(v.Lease)
		w.PutZInt(v.InitialSN)
		w.PutBytes(v.Cookie)
	case OpenAck:
		flags := FlagA
		if v.LeaseIsSec {
			flags |= FlagT2
		}
		w.PutByte(packHeader(IDOpen, flags))
		w.PutZInt(v.Lease)
		w.PutZInt(v.InitialSN)
	case Close:
		w.PutByte(packHeader(IDClose, 0))
		w.PutByte(byte(v.Reason))
	case KeepAlive:
		w.PutByte(packHeader(IDKeepAlive, 0))
	case Frame:
		flags := byte(0)
		if v.Reliable {
			flags |= FlagR
		}
		if v.Fragment {
			flags |= FlagF
			if v.More {
				flags |= FlagN
			}
		}
		w.PutByte(packHeader(IDFrame, flags))
		w.PutZInt(v.SN)
		w.PutBytes(v.Payload)
	default:
		return &zerrors.ProtocolError{Operation: "encode transport message", Offset: -1, Message: fmt.Sprintf("unknown transport message type %T", m)}
	}
	return nil
}

// DecodeTransportMessage reads one transport message from r.
func DecodeTransportMessage(r *zbuf.RBuf) (TransportMessage, error) {
	hdr, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	id, flags := unpackHeader(hdr)
	switch id {
	case IDScout:
		version, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		what, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		return Scout{Version: version, What: what}, nil
	case IDHello:
		version, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		whatami, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		zid, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		n, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		var locators []string
		if n > 0 {
			locators = make([]string, 0, n)
		}
		for i := uint64(0); i < n; i++ {
			loc, err := r.GetString()
			if err != nil {
				return nil, err
			}
			locators = append(locators, loc)
		}
		return Hello{Version: version, WhatAmI: whatami, ZenohID: cloneBytes(zid), Locators: locators}, nil
	case IDInit:
		version, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		whatami, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		zid, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		var snRes uint64
		if flags&FlagS != 0 {
			snRes, err = r.GetZInt()
			if err != nil {
				return nil, err
			}
		}
		if flags&FlagA != 0 {
			cookie, err := r.GetBytes()
			if err != nil {
				return nil, err
			}
			return InitAck{Version: version, WhatAmI: whatami, ZenohID: cloneBytes(zid), SNResolution: snRes, Cookie: cloneBytes(cookie)}, nil
		}
		return InitSyn{Version: version, WhatAmI: whatami, ZenohID: cloneBytes(zid), SNResolution: snRes}, nil
	case IDOpen:
		lease, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		initialSN, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		leaseIsSec := flags&FlagT2 != 0
		if flags&FlagA != 0 {
			return OpenAck{Lease: lease, LeaseIsSec: leaseIsSec, InitialSN: initialSN}, nil
		}
		cookie, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		return OpenSyn{Lease: lease, LeaseIsSec: leaseIsSec, InitialSN: initialSN, Cookie: cloneBytes(cookie)}, nil
	case IDClose:
		reason, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		return Close{Reason: CloseReason(reason)}, nil
	case IDKeepAlive:
		return KeepAlive{}, nil
	case IDFrame:
		sn, err := r.GetZInt()
		if err != nil {
			return nil, err
		}
		payload, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		return Frame{
			Reliable: flags&FlagR != 0,
			SN:       sn,
			Fragment: flags&FlagF != 0,
			More:     flags&FlagF != 0 && flags&FlagN != 0,
			Payload:  cloneBytes(payload),
		}, nil
	default:
		return nil, &zerrors.ProtocolError{Operation: "decode transport message", Offset: r.Pos(), Message: fmt.Sprintf("unknown transport message id 0x%02x", id)}
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// EncodeTransportMessageBytes is a convenience wrapper returning m's
// encoded form as a standalone byte slice, used by the outbound path
// to build one link write per transport message.
func EncodeTransportMessageBytes(m TransportMessage) ([]byte, error) {
	w := zbuf.NewWBuf(64)
	if err := EncodeTransportMessage(w, m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
