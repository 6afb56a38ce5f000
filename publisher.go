package zenoh

import (
	"context"

	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
)

// Publisher is a declared publisher: a resource id bound to a key
// expression once, so a write through it never re-sends the key
// expression string.
type Publisher struct {
	sess    *Session
	id      uint64
	rid     uint64
	keyExpr string
}

// DeclarePublisher binds keyExpr to a fresh resource id and announces
// both the RESOURCE and PUBLISHER declarations to the router.
func (s *Session) DeclarePublisher(ctx context.Context, keyExpr string) (*Publisher, error) {
	rid := s.sess.Registry.NextID()
	if err := s.sess.Registry.RegisterResource(registry.Local, rid, wire.ResKey{Suffix: keyExpr}); err != nil {
		return nil, err
	}

	pubID := s.sess.Registry.NextID()
	if err := s.sess.Registry.RegisterPublisher(registry.Local, pubID, wire.ResKey{Rid: rid}, keyExpr); err != nil {
		s.sess.Registry.UnregisterResource(rid)
		return nil, err
	}

	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.ResourceDecl{Rid: rid, Key: wire.ResKey{Suffix: keyExpr}},
		wire.PublisherDecl{Key: wire.ResKey{Rid: rid}},
	}}
	if err := s.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock); err != nil {
		s.sess.Registry.UnregisterPublisher(pubID)
		s.sess.Registry.UnregisterResource(rid)
		return nil, err
	}

	return &Publisher{sess: s, id: pubID, rid: rid, keyExpr: keyExpr}, nil
}

// Write publishes payload through the bound resource id.
func (pub *Publisher) Write(ctx context.Context, payload []byte, opts ...WriteOption) error {
	o := writeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	msg := wire.Data{
		Key:        wire.ResKey{Rid: pub.rid},
		Congestion: o.congestion,
		Payload:    payload,
	}
	if o.encoding != "" || o.hasTime {
		msg.Info = &wire.DataInfo{Encoding: o.encoding, Timestamp: o.timestamp, HasTime: o.hasTime}
	}
	return pub.sess.sess.SendZenohMessage(ctx, msg, true, o.congestion)
}

// Undeclare forgets the publisher and its bound resource id.
func (pub *Publisher) Undeclare(ctx context.Context) error {
	pub.sess.sess.Registry.UnregisterPublisher(pub.id)
	pub.sess.sess.Registry.UnregisterResource(pub.rid)
	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.ForgetPublisherDecl{Key: wire.ResKey{Rid: pub.rid}},
		wire.ForgetResourceDecl{Rid: pub.rid},
	}}
	return pub.sess.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock)
}
