package zenoh

import (
	"context"
	"testing"

	"github.com/frankplus/zenoh-pico/internal/wire"
)

func TestDeclarePublisherAnnouncesResourceAndPublisher(t *testing.T) {
	s, _, clientLink := newTestSession(t)
	pub, err := s.DeclarePublisher(context.Background(), "demo/hello")
	if err != nil {
		t.Fatalf("DeclarePublisher: %v", err)
	}

	msgs := lastFrame(t, clientLink)
	decl := msgs[0].(wire.Declare)
	if len(decl.Declarations) != 2 {
		t.Fatalf("expected RESOURCE + PUBLISHER declarations, got %d", len(decl.Declarations))
	}
	rd, ok := decl.Declarations[0].(wire.ResourceDecl)
	if !ok || rd.Key.Suffix != "demo/hello" {
		t.Fatalf("expected ResourceDecl{Suffix:demo/hello}, got %#v", decl.Declarations[0])
	}
	pd, ok := decl.Declarations[1].(wire.PublisherDecl)
	if !ok || pd.Key.Rid != rd.Rid {
		t.Fatalf("expected PublisherDecl bound to resource %d, got %#v", rd.Rid, decl.Declarations[1])
	}

	if err := pub.Write(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msgs = lastFrame(t, clientLink)
	data, ok := msgs[0].(wire.Data)
	if !ok || data.Key.Rid != rd.Rid || string(data.Payload) != "hello" {
		t.Fatalf("expected Data{Rid:%d, Payload:hello}, got %#v", rd.Rid, msgs[0])
	}

	if err := pub.Undeclare(context.Background()); err != nil {
		t.Fatalf("Undeclare: %v", err)
	}
	msgs = lastFrame(t, clientLink)
	decl = msgs[0].(wire.Declare)
	if _, ok := decl.Declarations[0].(wire.ForgetPublisherDecl); !ok {
		t.Fatalf("expected ForgetPublisherDecl first, got %#v", decl.Declarations[0])
	}
	if _, ok := decl.Declarations[1].(wire.ForgetResourceDecl); !ok {
		t.Fatalf("expected ForgetResourceDecl second, got %#v", decl.Declarations[1])
	}
}

func TestSessionWriteCarriesEncodingAndTimestamp(t *testing.T) {
	s, _, clientLink := newTestSession(t)
	err := s.Write(context.Background(), "demo/a", []byte("v"), WithEncoding("text/plain"), WithTimestamp(42))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	msgs := lastFrame(t, clientLink)
	data, ok := msgs[0].(wire.Data)
	if !ok {
		t.Fatalf("expected Data, got %#v", msgs[0])
	}
	if data.Info == nil || data.Info.Encoding != "text/plain" || !data.Info.HasTime || data.Info.Timestamp != 42 {
		t.Fatalf("expected encoding+timestamp info, got %#v", data.Info)
	}
}
