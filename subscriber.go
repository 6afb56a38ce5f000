package zenoh

import (
	"context"

	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// Sample is one value delivered to a subscription: the resolved
// concrete key it was published under, its payload, and whatever
// encoding/timestamp decorated the write.
type Sample struct {
	Key       string
	Payload   []byte
	Encoding  string
	Timestamp uint64
	HasTime   bool
}

// Subscriber is a declared subscription: a key expression (possibly
// carrying `*`/`**` wildcards) and the callback invoked for every
// matching sample, on the session's reader goroutine.
type Subscriber struct {
	sess    *Session
	id      uint64
	keyExpr string
	pull    bool
}

// DeclareSubscriber registers keyExpr with the router and arranges
// for cb to be invoked, on the session's single reader goroutine, for
// every sample published to a key matching keyExpr. reliable is the
// delivery reliability requested for the samples (carried in the
// declaration's SubInfo); the declaration itself always travels on
// the reliable lane.
func (s *Session) DeclareSubscriber(ctx context.Context, keyExpr string, reliable bool, cb SampleCallback) (*Subscriber, error) {
	return s.declareSubscriber(ctx, keyExpr, reliable, wire.SubModePush, cb)
}

// DeclarePullSubscriber registers keyExpr in pull mode: the router
// buffers matching samples instead of pushing them, and cb fires only
// for samples released by a later call to Subscriber.Pull.
func (s *Session) DeclarePullSubscriber(ctx context.Context, keyExpr string, reliable bool, cb SampleCallback) (*Subscriber, error) {
	return s.declareSubscriber(ctx, keyExpr, reliable, wire.SubModePull, cb)
}

func (s *Session) declareSubscriber(ctx context.Context, keyExpr string, reliable bool, mode wire.SubMode, cb SampleCallback) (*Subscriber, error) {
	id := s.sess.Registry.NextID()

	dataCB := func(key string, payload []byte, encoding string, timestamp uint64, hasTime bool) {
		if cb == nil {
			return
		}
		cb(Sample{Key: key, Payload: payload, Encoding: encoding, Timestamp: timestamp, HasTime: hasTime})
	}
	if err := s.sess.Registry.RegisterSubscription(registry.Local, id, wire.ResKey{Suffix: keyExpr}, keyExpr, reliable, mode, dataCB); err != nil {
		return nil, err
	}

	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.SubscriberDecl{Key: wire.ResKey{Suffix: keyExpr}, HasSubInfo: true, Mode: mode, Reliable: reliable},
	}}
	if err := s.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock); err != nil {
		s.sess.Registry.UnregisterSubscription(id)
		return nil, err
	}

	return &Subscriber{sess: s, id: id, keyExpr: keyExpr, pull: mode == wire.SubModePull}, nil
}

// Pull requests delivery of whatever samples the router has buffered
// for a pull-mode subscription since the last Pull call. It is a
// no-op error on a subscriber declared with DeclareSubscriber (push
// mode never buffers).
func (sub *Subscriber) Pull(ctx context.Context) error {
	if !sub.pull {
		return &zerrors.StateError{Operation: "pull", State: "push", Message: "subscriber was not declared in pull mode"}
	}
	msg := wire.Pull{Key: wire.ResKey{Suffix: sub.keyExpr}, PullID: sub.sess.sess.Registry.NextID()}
	return sub.sess.sess.SendZenohMessage(ctx, msg, true, wire.CongestionBlock)
}

// Undeclare forgets the subscription and notifies the router.
func (sub *Subscriber) Undeclare(ctx context.Context) error {
	sub.sess.sess.Registry.UnregisterSubscription(sub.id)
	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.ForgetSubscriberDecl{Key: wire.ResKey{Suffix: sub.keyExpr}},
	}}
	return sub.sess.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock)
}
