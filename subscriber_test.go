package zenoh

import (
	"context"
	"testing"
	"time"

	"github.com/frankplus/zenoh-pico/internal/wire"
)

func TestDeclareSubscriberSendsDecl(t *testing.T) {
	s, _, clientLink := newTestSession(t)
	sub, err := s.DeclareSubscriber(context.Background(), "sensor/*", true, func(Sample) {})
	if err != nil {
		t.Fatalf("DeclareSubscriber: %v", err)
	}

	msgs := lastFrame(t, clientLink)
	decl := msgs[0].(wire.Declare)
	sd, ok := decl.Declarations[0].(wire.SubscriberDecl)
	if !ok || sd.Key.Suffix != "sensor/*" || !sd.Reliable {
		t.Fatalf("expected reliable SubscriberDecl on sensor/*, got %#v", decl.Declarations[0])
	}

	if err := sub.Undeclare(context.Background()); err != nil {
		t.Fatalf("Undeclare: %v", err)
	}
	msgs = lastFrame(t, clientLink)
	decl = msgs[0].(wire.Declare)
	if _, ok := decl.Declarations[0].(wire.ForgetSubscriberDecl); !ok {
		t.Fatalf("expected ForgetSubscriberDecl, got %#v", decl.Declarations[0])
	}
}

// TestWildcardSubscriptionReceivesConcreteData exercises the matching
// direction GetSubscriptionsMatching actually needs: a subscription
// declared with a wildcarded name must fire for a concrete published
// key, not the other way around.
func TestWildcardSubscriptionReceivesConcreteData(t *testing.T) {
	s, routerSide, _ := newTestSession(t)
	cancel := startRunLoop(s)
	defer cancel()

	got := make(chan Sample, 1)
	if _, err := s.DeclareSubscriber(context.Background(), "sensor/**", false, func(sample Sample) {
		got <- sample
	}); err != nil {
		t.Fatalf("DeclareSubscriber: %v", err)
	}

	sendFromPeer(t, routerSide, 0, wire.Data{
		Key:     wire.ResKey{Suffix: "sensor/kitchen/temp"},
		Payload: []byte("21.5"),
	})

	select {
	case sample := <-got:
		if sample.Key != "sensor/kitchen/temp" || string(sample.Payload) != "21.5" {
			t.Errorf("got %+v", sample)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample on wildcard subscription")
	}
}

func TestNonMatchingDataIsNotDelivered(t *testing.T) {
	s, routerSide, _ := newTestSession(t)
	cancel := startRunLoop(s)
	defer cancel()

	got := make(chan Sample, 1)
	if _, err := s.DeclareSubscriber(context.Background(), "sensor/*", false, func(sample Sample) {
		got <- sample
	}); err != nil {
		t.Fatalf("DeclareSubscriber: %v", err)
	}

	// "weather/today" does not match "sensor/*"; "sensor/a/b" does not
	// either since "*" covers exactly one segment.
	sendFromPeer(t, routerSide, 0, wire.Data{Key: wire.ResKey{Suffix: "weather/today"}, Payload: []byte("x")})
	sendFromPeer(t, routerSide, 1, wire.Data{Key: wire.ResKey{Suffix: "sensor/a/b"}, Payload: []byte("x")})
	sendFromPeer(t, routerSide, 2, wire.Data{Key: wire.ResKey{Suffix: "sensor/temp"}, Payload: []byte("match")})

	select {
	case sample := <-got:
		if sample.Key != "sensor/temp" {
			t.Fatalf("expected only the matching sample to arrive, got %+v", sample)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the matching sample")
	}

	select {
	case sample := <-got:
		t.Fatalf("unexpected second delivery: %+v", sample)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPullOnPushSubscriberErrors(t *testing.T) {
	s, _, _ := newTestSession(t)
	sub, err := s.DeclareSubscriber(context.Background(), "a/b", true, nil)
	if err != nil {
		t.Fatalf("DeclareSubscriber: %v", err)
	}
	if err := sub.Pull(context.Background()); err == nil {
		t.Fatal("expected Pull on a push-mode subscriber to error")
	}
}

func TestPullSubscriberSendsPullMessage(t *testing.T) {
	s, _, clientLink := newTestSession(t)
	sub, err := s.DeclarePullSubscriber(context.Background(), "a/b", true, nil)
	if err != nil {
		t.Fatalf("DeclarePullSubscriber: %v", err)
	}

	if err := sub.Pull(context.Background()); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	msgs := lastFrame(t, clientLink)
	pull, ok := msgs[0].(wire.Pull)
	if !ok || pull.Key.Suffix != "a/b" {
		t.Fatalf("expected a Pull message for a/b, got %#v", msgs[0])
	}
}
