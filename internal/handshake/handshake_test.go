package handshake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/session"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zrand"
)

// scriptedRouter plays the responder's half of the 4-way handshake
// over a MockLink, using routerInitAck as the INIT-Ack to send back.
func scriptedRouter(t *testing.T, peer link.Link, routerInitAck wire.InitAck, remoteInitialSN uint64) {
	t.Helper()
	ctx := context.Background()

	raw, err := peer.Receive(ctx)
	if err != nil {
		t.Errorf("router: receive INIT-Syn: %v", err)
		return
	}
	msg, err := wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
	if err != nil {
		t.Errorf("router: decode INIT-Syn: %v", err)
		return
	}
	if _, ok := msg.(wire.InitSyn); !ok {
		t.Errorf("router: expected InitSyn, got %T", msg)
		return
	}

	ackBytes, err := wire.EncodeTransportMessageBytes(routerInitAck)
	if err != nil {
		t.Errorf("router: encode INIT-Ack: %v", err)
		return
	}
	if err := peer.Send(ctx, ackBytes); err != nil {
		t.Errorf("router: send INIT-Ack: %v", err)
		return
	}

	raw, err = peer.Receive(ctx)
	if err != nil {
		// The link closed before anything else arrived.
		return
	}
	msg, err = wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
	if err != nil {
		t.Errorf("router: decode OPEN-Syn: %v", err)
		return
	}
	if _, ok := msg.(wire.Close); ok {
		// Client aborted with CLOSE instead of OPEN-Syn (S2 rejection path).
		return
	}
	if _, ok := msg.(wire.OpenSyn); !ok {
		t.Errorf("router: expected OpenSyn, got %T", msg)
		return
	}

	openAck := wire.OpenAck{Lease: 15000, InitialSN: remoteInitialSN}
	openAckBytes, err := wire.EncodeTransportMessageBytes(openAck)
	if err != nil {
		t.Errorf("router: encode OPEN-Ack: %v", err)
		return
	}
	if err := peer.Send(ctx, openAckBytes); err != nil {
		t.Errorf("router: send OPEN-Ack: %v", err)
	}
}

func TestOpenHappyPath(t *testing.T) {
	client, routerSide := link.NewMockLinkPair(true)
	remotePID := []byte{9, 9, 9, 9}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scriptedRouter(t, routerSide, wire.InitAck{
			Version: 1, WhatAmI: 1, ZenohID: remotePID, Cookie: []byte("cookie"),
		}, 42)
	}()

	s, err := Open(context.Background(), OpenConfig{
		Link:             client,
		WhatAmI:          0,
		Rand:             zrand.NewDeterministic([]uint64{123456}, 0xAB),
		RoundTripTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-done

	if s.State() != session.StateEstablished {
		t.Errorf("State() = %v, want ESTABLISHED", s.State())
	}
	if string(s.RemotePID) != string(remotePID) {
		t.Errorf("RemotePID = %v, want %v", s.RemotePID, remotePID)
	}
}

func TestOpenRejectsWiderSNResolution(t *testing.T) {
	client, routerSide := link.NewMockLinkPair(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scriptedRouter(t, routerSide, wire.InitAck{
			Version:      1,
			WhatAmI:      1,
			ZenohID:      []byte{1, 2, 3, 4},
			SNResolution: session.DefaultSNResolution * 2,
			Cookie:       []byte("cookie"),
		}, 0)
	}()

	_, err := Open(context.Background(), OpenConfig{
		Link:             client,
		Rand:             zrand.NewDeterministic([]uint64{1}, 0),
		RoundTripTimeout: 2 * time.Second,
	})
	if err == nil {
		t.Fatal("expected Open to fail when responder widens sn_resolution")
	}
	var stateErr *zerrors.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected a *zerrors.StateError, got %T: %v", err, err)
	}

	<-done

	calls := client.SendCalls()
	if len(calls) != 2 {
		t.Fatalf("expected INIT-Syn + CLOSE, got %d sends", len(calls))
	}
	closeMsg, err := wire.DecodeTransportMessage(zbuf.NewRBuf(calls[1]))
	if err != nil {
		t.Fatalf("decode close: %v", err)
	}
	c, ok := closeMsg.(wire.Close)
	if !ok {
		t.Fatalf("expected a Close message, got %T", closeMsg)
	}
	if c.Reason != wire.CloseInvalid {
		t.Errorf("Reason = %v, want CloseInvalid", c.Reason)
	}
}

