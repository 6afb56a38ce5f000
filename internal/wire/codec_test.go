package wire

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/frankplus/zenoh-pico/internal/zbuf"
)

func roundTripTransport(t *testing.T, m TransportMessage) TransportMessage {
	t.Helper()
	w := zbuf.NewWBuf(64)
	if err := EncodeTransportMessage(w, m); err != nil {
		t.Fatalf("encode %#v: %v", m, err)
	}
	r := zbuf.NewRBuf(w.Bytes())
	got, err := DecodeTransportMessage(r)
	if err != nil {
		t.Fatalf("decode %#v: %v", m, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("decode left %d trailing bytes for %#v", r.Remaining(), m)
	}
	// encode(decode(b)) == b (property 1)
	w2 := zbuf.NewWBuf(64)
	if err := EncodeTransportMessage(w2, got); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(w.Bytes(), w2.Bytes()) {
		t.Fatalf("re-encoding decoded message produced different bytes:\n  first:  % x\n  second: % x", w.Bytes(), w2.Bytes())
	}
	return got
}

func TestTransportMessageRoundTrip(t *testing.T) {
	zid := []byte{0xde, 0xad, 0xbe, 0xef}
	cases := []TransportMessage{
		Scout{Version: 1, What: 0x7},
		Scout{Version: 1, What: 0},
		Hello{Version: 1, WhatAmI: 1, ZenohID: zid, Locators: []string{"tcp/127.0.0.1:7447"}},
		Hello{Version: 1, WhatAmI: 2, ZenohID: zid, Locators: []string{"tcp/127.0.0.1:7447", "udp/127.0.0.1:7448"}},
		Hello{Version: 1, WhatAmI: 4, ZenohID: zid, Locators: nil},
		InitSyn{Version: 1, WhatAmI: 0, ZenohID: zid},
		InitSyn{Version: 1, WhatAmI: 1, ZenohID: zid, SNResolution: 1 << 20},
		InitAck{Version: 1, WhatAmI: 2, ZenohID: zid, Cookie: []byte("cookie")},
		InitAck{Version: 1, WhatAmI: 2, ZenohID: zid, SNResolution: 256, Cookie: []byte("cookie")},
		OpenSyn{Lease: 15000, InitialSN: 0, Cookie: []byte("cookie")},
		OpenSyn{Lease: 30, LeaseIsSec: true, InitialSN: 42, Cookie: nil},
		OpenAck{Lease: 15000, InitialSN: 7},
		Close{Reason: CloseExpired},
		KeepAlive{},
		Frame{Reliable: true, SN: 100, Payload: []byte{1, 2, 3}},
		Frame{Reliable: false, SN: 0, Payload: nil},
		Frame{Reliable: true, SN: 5, Fragment: true, More: true, Payload: []byte{9}},
		Frame{Reliable: true, SN: 6, Fragment: true, More: false, Payload: []byte{9, 9}},
	}
	for i, c := range cases {
		i, c := i, c
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			got := roundTripTransport(t, c)
			if !reflect.DeepEqual(got, c) {
				t.Fatalf("case %d: mismatch: want %#v got %#v", i, c, got)
			}
		})
	}
}

func roundTripZenoh(t *testing.T, m ZenohMessage) ZenohMessage {
	t.Helper()
	w := zbuf.NewWBuf(64)
	if err := EncodeZenohMessage(w, m); err != nil {
		t.Fatalf("encode %#v: %v", m, err)
	}
	r := zbuf.NewRBuf(w.Bytes())
	got, err := DecodeZenohMessage(r)
	if err != nil {
		t.Fatalf("decode %#v: %v", m, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("decode left %d trailing bytes for %#v", r.Remaining(), m)
	}
	w2 := zbuf.NewWBuf(64)
	if err := EncodeZenohMessage(w2, got); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(w.Bytes(), w2.Bytes()) {
		t.Fatalf("re-encoding decoded message produced different bytes:\n  first:  % x\n  second: % x", w.Bytes(), w2.Bytes())
	}
	return got
}

func TestZenohMessageRoundTrip(t *testing.T) {
	t.Run("Data with numeric key", func(t *testing.T) {
		got := roundTripZenoh(t, Data{Key: ResKey{Rid: 42}, Payload: []byte("hello")})
		d := got.(Data)
		if d.Key.Rid != 42 || string(d.Payload) != "hello" {
			t.Fatalf("got %#v", d)
		}
	})
	t.Run("Data with DataInfo and Drop congestion", func(t *testing.T) {
		got := roundTripZenoh(t, Data{
			Key:        ResKey{Suffix: "/a/b"},
			Congestion: CongestionDrop,
			Info:       &DataInfo{Encoding: "text/plain", HasTime: true, Timestamp: 12345},
			Payload:    []byte("x"),
		})
		d := got.(Data)
		if d.Congestion != CongestionDrop || d.Info == nil || d.Info.Encoding != "text/plain" || !d.Info.HasTime || d.Info.Timestamp != 12345 {
			t.Fatalf("got %#v", d)
		}
	})
	t.Run("Unit", func(t *testing.T) {
		roundTripZenoh(t, Unit{Key: ResKey{Rid: 1}})
	})
	t.Run("Pull with max samples", func(t *testing.T) {
		got := roundTripZenoh(t, Pull{Key: ResKey{Rid: 1}, PullID: 3, HasMax: true, MaxSamples: 10})
		p := got.(Pull)
		if p.PullID != 3 || !p.HasMax || p.MaxSamples != 10 {
			t.Fatalf("got %#v", p)
		}
	})
	t.Run("Query with explicit target", func(t *testing.T) {
		got := roundTripZenoh(t, Query{
			Key: ResKey{Suffix: "/a/*"}, Predicate: "x>1", QueryID: 99,
			HasTarget: true, Target: TargetComplete, Consolidation: ConsolidationFull,
		})
		q := got.(Query)
		if q.Predicate != "x>1" || q.QueryID != 99 || q.Target != TargetComplete || q.Consolidation != ConsolidationFull {
			t.Fatalf("got %#v", q)
		}
	})
	t.Run("ReplyContext non-final", func(t *testing.T) {
		got := roundTripZenoh(t, ReplyContext{QueryID: 5, ReplierID: []byte{1, 2}})
		rc := got.(ReplyContext)
		if rc.Final || rc.QueryID != 5 || !bytes.Equal(rc.ReplierID, []byte{1, 2}) {
			t.Fatalf("got %#v", rc)
		}
	})
	t.Run("ReplyContext final", func(t *testing.T) {
		got := roundTripZenoh(t, ReplyContext{QueryID: 5, Final: true})
		rc := got.(ReplyContext)
		if !rc.Final || rc.ReplierID != nil {
			t.Fatalf("got %#v", rc)
		}
	})
	t.Run("Attachment", func(t *testing.T) {
		roundTripZenoh(t, Attachment{Payload: []byte("meta")})
	})
	t.Run("Declare with full declaration set", func(t *testing.T) {
		got := roundTripZenoh(t, Declare{Declarations: []Declaration{
			ResourceDecl{Rid: 1, Key: ResKey{Suffix: "/a/b"}},
			PublisherDecl{Key: ResKey{Rid: 1}},
			SubscriberDecl{Key: ResKey{Rid: 1}, HasSubInfo: true, Mode: SubModePull, Reliable: true},
			QueryableDecl{Key: ResKey{Rid: 1}},
			ForgetSubscriberDecl{Key: ResKey{Rid: 1}},
			ForgetPublisherDecl{Key: ResKey{Rid: 1}},
			ForgetQueryableDecl{Key: ResKey{Rid: 1}},
			ForgetResourceDecl{Rid: 1},
		}})
		decl := got.(Declare)
		if len(decl.Declarations) != 8 {
			t.Fatalf("got %d declarations, want 8", len(decl.Declarations))
		}
		sub, ok := decl.Declarations[2].(SubscriberDecl)
		if !ok || !sub.HasSubInfo || sub.Mode != SubModePull || !sub.Reliable {
			t.Fatalf("SubscriberDecl mismatch: %#v", decl.Declarations[2])
		}
	})
}

func TestResKeyZeroRidAlwaysCarriesSuffix(t *testing.T) {
	// scenario S3: a suffix-only key (no bound rid yet) must always
	// round trip its name even though Z_K was not explicitly requested.
	k := ResKey{Rid: NoResourceID, Suffix: "/demo/example"}
	got := roundTripZenoh(t, Declare{Declarations: []Declaration{PublisherDecl{Key: k}}})
	p := got.(Declare).Declarations[0].(PublisherDecl)
	if p.Key.Suffix != "/demo/example" {
		t.Fatalf("got key %#v", p.Key)
	}
}

func TestDecodeUnknownTransportID(t *testing.T) {
	r := zbuf.NewRBuf([]byte{0x1f}) // id 0x1f is not a defined transport message
	if _, err := DecodeTransportMessage(r); err == nil {
		t.Fatalf("expected protocol error for unknown id")
	}
}

func TestDecodeUnknownZenohID(t *testing.T) {
	r := zbuf.NewRBuf([]byte{0x1f})
	if _, err := DecodeZenohMessage(r); err == nil {
		t.Fatalf("expected protocol error for unknown id")
	}
}

func TestTCPFrameRoundTrip(t *testing.T) {
	w := zbuf.NewWBuf(32)
	payload := []byte{1, 2, 3, 4, 5}
	WriteTCPFrame(w, payload)

	got, consumed, err := ReadTCPFrame(w.Bytes())
	if err != nil {
		t.Fatalf("ReadTCPFrame: %v", err)
	}
	if consumed != w.Len() {
		t.Fatalf("consumed = %d, want %d", consumed, w.Len())
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = % x, want % x", got, payload)
	}
}

func TestTCPFrameIncomplete(t *testing.T) {
	w := zbuf.NewWBuf(32)
	WriteTCPFrame(w, []byte{1, 2, 3, 4, 5})
	// Drop the last byte: the frame is declared but not fully arrived.
	partial := w.Bytes()[:w.Len()-1]
	payload, consumed, err := ReadTCPFrame(partial)
	if err != nil {
		t.Fatalf("ReadTCPFrame: %v", err)
	}
	if payload != nil || consumed != 0 {
		t.Fatalf("expected no frame yet, got payload=% x consumed=%d", payload, consumed)
	}
}
