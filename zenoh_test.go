package zenoh

import (
	"context"
	"testing"
	"time"

	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/query"
	"github.com/frankplus/zenoh-pico/internal/session"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

// newTestSession builds a *Session already in the ESTABLISHED state
// over a MockLinkPair, the same way session_test.go does for
// internal/session, skipping the handshake entirely. clientLink is
// the link the session itself owns (inspect clientLink.SendCalls()
// for what the session transmitted); routerSide is the other end of
// the pair, for a test to play the router by writing raw transport
// frames directly (sendFromPeer).
func newTestSession(t *testing.T) (s *Session, routerSide *link.MockLink, clientLink *link.MockLink) {
	t.Helper()
	a, b := link.NewMockLinkPair(true)
	sess := session.New(session.Config{
		Link:         a,
		LocalPID:     []byte{1, 2, 3, 4},
		RemotePID:    []byte{5, 6, 7, 8},
		SNResolution: 256,
	})
	s = &Session{
		sess:       sess,
		query:      query.NewEngine(sess, sess.Registry, zlog.Nop{}),
		log:        zlog.Nop{},
		runDone:    make(chan struct{}),
		qablesByID: make(map[uint64]QueryableCallback),
	}
	return s, b, a
}

// startRunLoop starts the session's reader goroutine against peer,
// mirroring what Open does, for tests that need router-initiated
// traffic dispatched.
func startRunLoop(s *Session) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	go s.runLoop(ctx)
	return cancel
}

// lastFrame decodes the most recently sent transport frame's payload
// into every zenoh message it carries.
func lastFrame(t *testing.T, peer *link.MockLink) []wire.ZenohMessage {
	t.Helper()
	calls := peer.SendCalls()
	if len(calls) == 0 {
		t.Fatal("expected at least one frame sent")
	}
	return decodeFrame(t, calls[len(calls)-1])
}

func decodeFrame(t *testing.T, raw []byte) []wire.ZenohMessage {
	t.Helper()
	tm, err := wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
	if err != nil {
		t.Fatalf("decode transport message: %v", err)
	}
	frame, ok := tm.(wire.Frame)
	if !ok {
		t.Fatalf("expected a Frame, got %T", tm)
	}
	r := zbuf.NewRBuf(frame.Payload)
	var out []wire.ZenohMessage
	for r.Remaining() > 0 {
		msg, err := wire.DecodeZenohMessage(r)
		if err != nil {
			t.Fatalf("decode zenoh message: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// sendFromPeer encodes msg as a reliable Frame and writes it on peer,
// as if the router had sent it.
func sendFromPeer(t *testing.T, peer *link.MockLink, sn uint64, msg wire.ZenohMessage) {
	t.Helper()
	sendFramesFromPeer(t, peer, sn, msg)
}

// sendFramesFromPeer packs every msg into a single reliable Frame, the
// way a ReplyContext decorator and the Data/Unit it decorates must
// travel together in the same Frame.
func sendFramesFromPeer(t *testing.T, peer *link.MockLink, sn uint64, msgs ...wire.ZenohMessage) {
	t.Helper()
	w := zbuf.NewWBuf(64)
	for _, msg := range msgs {
		if err := wire.EncodeZenohMessage(w, msg); err != nil {
			t.Fatalf("encode zenoh message: %v", err)
		}
	}
	raw, err := wire.EncodeTransportMessageBytes(wire.Frame{Reliable: true, SN: sn, Payload: w.Bytes()})
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if err := peer.Send(context.Background(), raw); err != nil {
		t.Fatalf("peer send: %v", err)
	}
}

func TestDeclareAndUndeclareResource(t *testing.T) {
	s, _, clientLink := newTestSession(t)
	ctx := context.Background()

	rid, err := s.DeclareResource(ctx, "demo/a")
	if err != nil {
		t.Fatalf("DeclareResource: %v", err)
	}
	msgs := lastFrame(t, clientLink)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	decl, ok := msgs[0].(wire.Declare)
	if !ok || len(decl.Declarations) != 1 {
		t.Fatalf("expected a single-entry Declare, got %#v", msgs[0])
	}
	rd, ok := decl.Declarations[0].(wire.ResourceDecl)
	if !ok || rd.Rid != rid || rd.Key.Suffix != "demo/a" {
		t.Fatalf("expected ResourceDecl{Rid:%d, Key.Suffix:demo/a}, got %#v", rid, decl.Declarations[0])
	}

	if err := s.UndeclareResource(ctx, rid); err != nil {
		t.Fatalf("UndeclareResource: %v", err)
	}
	msgs = lastFrame(t, clientLink)
	decl = msgs[0].(wire.Declare)
	if _, ok := decl.Declarations[0].(wire.ForgetResourceDecl); !ok {
		t.Fatalf("expected ForgetResourceDecl, got %#v", decl.Declarations[0])
	}
	if _, found := s.sess.Registry.GetResourceByID(rid); found {
		t.Error("resource should be unregistered after UndeclareResource")
	}
}

func TestCloseSendsCloseMessageAndStopsRunLoop(t *testing.T) {
	s, _, clientLink := newTestSession(t)
	cancel := startRunLoop(s)
	defer cancel()

	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls := clientLink.SendCalls()
	if len(calls) == 0 {
		t.Fatal("expected a CLOSE message to be sent")
	}
	if tm, err := wire.DecodeTransportMessage(zbuf.NewRBuf(calls[len(calls)-1])); err != nil {
		t.Fatalf("decode last sent message: %v", err)
	} else if _, ok := tm.(wire.Close); !ok {
		t.Fatalf("expected last sent message to be Close, got %T", tm)
	}

	select {
	case <-s.runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not stop after Close")
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestOperationsAfterCloseReturnStateError(t *testing.T) {
	s, _, _ := newTestSession(t)
	cancel := startRunLoop(s)
	defer cancel()

	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Write(ctx, "demo/a", []byte("v")); err == nil {
		t.Error("expected Write after Close to fail")
	} else if _, ok := err.(*zerrors.StateError); !ok {
		t.Errorf("Write after Close: got %T (%v), want *zerrors.StateError", err, err)
	}

	if _, err := s.DeclareResource(ctx, "demo/a"); err == nil {
		t.Error("expected DeclareResource after Close to fail")
	} else if _, ok := err.(*zerrors.StateError); !ok {
		t.Errorf("DeclareResource after Close: got %T (%v), want *zerrors.StateError", err, err)
	}

	if err := s.Read(ctx); err == nil {
		t.Error("expected Read after Close to fail")
	} else if _, ok := err.(*zerrors.StateError); !ok {
		t.Errorf("Read after Close: got %T (%v), want *zerrors.StateError", err, err)
	}
}

func TestInfoReportsNegotiatedIdentities(t *testing.T) {
	s, _, _ := newTestSession(t)
	info := s.Info()
	if string(info.LocalPID) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("LocalPID = %v", info.LocalPID)
	}
	if string(info.RemotePID) != string([]byte{5, 6, 7, 8}) {
		t.Errorf("RemotePID = %v", info.RemotePID)
	}
}
