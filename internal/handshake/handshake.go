package handshake

import (
	"context"
	"time"

	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/session"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zlog"
	"github.com/frankplus/zenoh-pico/internal/zrand"
)

// pidLength is the size, in bytes, of the random peer id generated
// when a caller does not supply one.
const pidLength = 16

// OpenConfig bundles the parameters for a single INIT/OPEN round.
// Link must already be dialed to the peer; Open never chooses a
// locator itself (Scout does that).
type OpenConfig struct {
	Link             link.Link
	LocalPID         []byte // generated via Rand if empty
	WhatAmI          uint64
	SNResolution     uint64 // 0 proposes session.DefaultSNResolution without setting the S flag
	Lease            time.Duration
	Version          byte
	RoundTripTimeout time.Duration
	Rand             zrand.Source
	Log              zlog.Logger
	ReconnectPolicy  session.ReconnectPolicy
	OnStateChange    func(session.State)
}

func (c OpenConfig) withDefaults() OpenConfig {
	if c.RoundTripTimeout <= 0 {
		c.RoundTripTimeout = 5 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 15 * time.Second
	}
	if c.Rand == nil {
		c.Rand = zrand.Crypto{}
	}
	if c.Log == nil {
		c.Log = zlog.Nop{}
	}
	return c
}

// Open drives the 4-way handshake to completion and returns an
// ESTABLISHED session.Session. It aborts with a
// zerrors.StateError carrying reason INVALID whenever the peer's
// response violates rules 3 or 4.
func Open(ctx context.Context, cfg OpenConfig) (*session.Session, error) {
	cfg = cfg.withDefaults()

	localPID := cfg.LocalPID
	if len(localPID) == 0 {
		localPID = make([]byte, pidLength)
		if _, err := cfg.Rand.Read(localPID); err != nil {
			return nil, &zerrors.IoError{Operation: "generate local pid", Err: err}
		}
	}

	proposedRes := cfg.SNResolution
	if proposedRes == 0 {
		proposedRes = session.DefaultSNResolution
	}
	wireRes := cfg.SNResolution // 0 means "use the default", matching wire.InitSyn's convention

	initSyn := wire.InitSyn{Version: cfg.Version, WhatAmI: cfg.WhatAmI, ZenohID: localPID, SNResolution: wireRes}
	reply, err := roundTrip(ctx, cfg, initSyn)
	if err != nil {
		return nil, err
	}
	initAck, ok := reply.(wire.InitAck)
	if !ok {
		return nil, abort(ctx, cfg, "INIT_SENT", "peer did not ack INIT, A flag unset")
	}

	// Rule 4: the responder may only narrow sn_resolution, never widen it.
	adoptedRes := proposedRes
	if initAck.SNResolution != 0 {
		if initAck.SNResolution > proposedRes {
			return nil, abort(ctx, cfg, "INIT_SENT", "init-ack proposed a wider sn_resolution than offered")
		}
		adoptedRes = initAck.SNResolution
	}

	initialSN := cfg.Rand.Uint64() % adoptedRes

	openSyn := wire.OpenSyn{Lease: uint64(cfg.Lease.Milliseconds()), InitialSN: initialSN, Cookie: initAck.Cookie}
	reply, err = roundTrip(ctx, cfg, openSyn)
	if err != nil {
		return nil, err
	}
	openAck, ok := reply.(wire.OpenAck)
	if !ok {
		return nil, abort(ctx, cfg, "OPEN_SENT", "peer did not ack OPEN, A flag unset")
	}

	lease := time.Duration(openAck.Lease) * time.Millisecond
	if openAck.LeaseIsSec {
		lease = time.Duration(openAck.Lease) * time.Second
	}

	s := session.New(session.Config{
		Link:            cfg.Link,
		LocalPID:        localPID,
		RemotePID:       initAck.ZenohID,
		SNResolution:    adoptedRes,
		InitialTxSN:     initialSN,
		InitialRxSN:     openAck.InitialSN,
		Lease:           lease,
		Log:             cfg.Log,
		Rand:            cfg.Rand,
		ReconnectPolicy: cfg.ReconnectPolicy,
		OnStateChange:   cfg.OnStateChange,
	})
	return s, nil
}

// abort sends a best-effort CLOSE/INVALID and returns the StateError
// the caller should propagate.
func abort(ctx context.Context, cfg OpenConfig, state, reason string) error {
	payload, err := wire.EncodeTransportMessageBytes(wire.Close{Reason: wire.CloseInvalid})
	if err == nil {
		_ = cfg.Link.Send(ctx, payload)
	}
	return &zerrors.StateError{Operation: "open", State: state, Message: reason}
}

// roundTrip sends one transport message and waits for the next one
// back, retrying nothing: the caller decides whether the reply's type
// satisfies the handshake rule it's enforcing.
func roundTrip(ctx context.Context, cfg OpenConfig, msg wire.TransportMessage) (wire.TransportMessage, error) {
	payload, err := wire.EncodeTransportMessageBytes(msg)
	if err != nil {
		return nil, err
	}

	rtCtx, cancel := context.WithTimeout(ctx, cfg.RoundTripTimeout)
	defer cancel()

	if err := cfg.Link.Send(rtCtx, payload); err != nil {
		return nil, err
	}

	raw, err := cfg.Link.Receive(rtCtx)
	if err != nil {
		return nil, &zerrors.TimeoutError{Operation: "handshake round trip", Err: err}
	}

	return wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
}
