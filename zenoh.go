package zenoh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frankplus/zenoh-pico/config"
	"github.com/frankplus/zenoh-pico/internal/handshake"
	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/locator"
	"github.com/frankplus/zenoh-pico/internal/query"
	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/session"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

// WhatAmI bits identify a node's role, carried in SCOUT/HELLO and
// proposed during open().
const (
	WhatRouter uint64 = 1
	WhatPeer   uint64 = 2
	WhatClient uint64 = 4
)

// HelloInfo is one entry returned by Scout: a peer observed on the
// multicast group, with the locators it can be reached on.
type HelloInfo struct {
	ZenohID  []byte
	WhatAmI  uint64
	Locators []string
}

// Scout joins the scout multicast group named by cfg, sends SCOUT
// datagrams until timeout elapses, and returns every distinct HELLO
// observed. It never opens a session itself; the caller picks a
// locator from the result and passes it to Open (or config.WithPeer).
func Scout(ctx context.Context, cfg *config.Config, what uint64, timeout time.Duration) ([]HelloInfo, error) {
	if timeout <= 0 {
		timeout = cfg.ScoutingTimeout()
	}
	hellos, err := handshake.Scout(ctx, handshake.ScoutConfig{
		MulticastAddress:   cfg.MulticastAddress(),
		MulticastInterface: cfg.MulticastInterface(),
		What:               what,
		Timeout:            timeout,
	})
	if err != nil {
		return nil, err
	}
	out := make([]HelloInfo, len(hellos))
	for i, h := range hellos {
		out[i] = HelloInfo{ZenohID: h.ZenohID, WhatAmI: h.WhatAmI, Locators: h.Locators}
	}
	return out, nil
}

// Session is a single established connection to one peer: resource,
// publisher, subscriber, and queryable declarations, publish, and
// query all go through it. A Session is safe for concurrent use.
type Session struct {
	sess  *session.Session
	query *query.Engine
	log   zlog.Logger

	dial func(ctx context.Context) (link.Link, error)

	runCancel context.CancelFunc
	runDone   chan struct{}

	mu         sync.Mutex
	qablesByID map[uint64]QueryableCallback
	closeOnce  sync.Once
}

// SampleCallback receives one sample delivered to a matching
// subscription.
type SampleCallback func(Sample)

// QueryableCallback receives one query addressed to a matching
// queryable. The callback must call Reply zero or more times; the
// session sends the terminating FINAL automatically once the
// callback returns, whether or not it panicked.
type QueryableCallback func(q *Query)

// OpenOption configures a single Open call.
type OpenOption func(*openOptions)

type openOptions struct {
	log zlog.Logger
}

// WithLogger routes the session's diagnostic logging through log
// instead of discarding it. zlog.NewLogrus() is the usual choice
// outside of tests.
func WithLogger(log zlog.Logger) OpenOption {
	return func(o *openOptions) { o.log = log }
}

// Open resolves a peer (via the pinned `peer` property, or by
// scouting if multicast_scouting is enabled), dials it, and drives
// the 4-way handshake to completion.
func Open(ctx context.Context, cfg *config.Config, opts ...OpenOption) (*Session, error) {
	o := openOptions{log: zlog.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}

	peer, err := resolvePeer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	loc, err := locator.Parse(peer)
	if err != nil {
		return nil, err
	}

	dial := func(ctx context.Context) (link.Link, error) {
		return dialLocator(ctx, loc)
	}

	lnk, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	log := o.log
	sess, err := handshake.Open(ctx, handshake.OpenConfig{
		Link:            lnk,
		WhatAmI:         WhatClient,
		ReconnectPolicy: session.RetryOnce{Dial: dial},
		Log:             log,
	})
	if err != nil {
		_ = lnk.Close()
		return nil, err
	}

	s := &Session{
		sess:       sess,
		query:      query.NewEngine(sess, sess.Registry, log),
		log:        log,
		dial:       dial,
		runDone:    make(chan struct{}),
		qablesByID: make(map[uint64]QueryableCallback),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	go s.runLoop(runCtx)

	return s, nil
}

func resolvePeer(ctx context.Context, cfg *config.Config) (string, error) {
	if peer, ok := cfg.Peer(); ok {
		return peer, nil
	}
	if !cfg.MulticastScouting() {
		return "", &zerrors.StateError{Operation: "open", State: "UNINIT", Message: "no peer configured and multicast scouting disabled"}
	}
	hellos, err := Scout(ctx, cfg, WhatRouter|WhatPeer, cfg.ScoutingTimeout())
	if err != nil {
		return "", err
	}
	for _, h := range hellos {
		if len(h.Locators) > 0 {
			return h.Locators[0], nil
		}
	}
	return "", &zerrors.TimeoutError{Operation: "scout", Err: context.DeadlineExceeded}
}

func dialLocator(ctx context.Context, loc locator.Locator) (link.Link, error) {
	switch loc.Scheme {
	case locator.SchemeTCP:
		return link.DialTCP(ctx, loc.Address)
	case locator.SchemeUDP:
		return link.DialUDP(ctx, loc.Address)
	default:
		return nil, &zerrors.ParseError{Operation: "dial locator", Input: string(loc.Scheme), Err: fmt.Errorf("unsupported locator scheme %q", loc.Scheme)}
	}
}

// runLoop is the session's dedicated read loop, started by Open and
// stopped by Close.
func (s *Session) runLoop(ctx context.Context) {
	defer close(s.runDone)
	_ = s.sess.Run(ctx, session.DispatchOptions{
		Replies: s.query,
		Queries: s,
	})
	s.query.CancelAll()
}

// Read processes exactly one inbound message on the session's link,
// for a caller that wants to drive the read loop by hand instead of
// relying on the background goroutine Open starts. Most callers never
// need this; it exists for the same reason zenoh-pico's z_read does.
func (s *Session) Read(ctx context.Context) error {
	_, err := s.sess.Step(ctx, session.DispatchOptions{Replies: s.query, Queries: s})
	return err
}

// SendKeepAlive sends a liveness heartbeat on the session's link,
// resetting the peer's lease timer.
func (s *Session) SendKeepAlive(ctx context.Context) error {
	return s.sess.SendKeepAlive(ctx)
}

// Info reports the local and remote peer identities negotiated during
// open().
type Info struct {
	LocalPID  []byte
	RemotePID []byte
}

func (s *Session) Info() Info {
	return Info{LocalPID: s.sess.LocalPID, RemotePID: s.sess.RemotePID}
}

// Close tears the session down: it sends a best-effort CLOSE, stops
// the reader goroutine, and wakes every pending QueryCollect as
// cancelled. Every public operation after Close returns a StateError.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sess.Close(ctx, session.CloseGeneric)
		s.runCancel()
		<-s.runDone
	})
	return err
}

// DeclareResource binds keyExpr to a fresh numeric id, so later writes
// addressed to that id avoid re-sending the full key expression.
func (s *Session) DeclareResource(ctx context.Context, keyExpr string) (uint64, error) {
	rid := s.sess.Registry.NextID()
	if err := s.sess.Registry.RegisterResource(registry.Local, rid, wire.ResKey{Suffix: keyExpr}); err != nil {
		return 0, err
	}
	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.ResourceDecl{Rid: rid, Key: wire.ResKey{Suffix: keyExpr}},
	}}
	if err := s.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock); err != nil {
		s.sess.Registry.UnregisterResource(rid)
		return 0, err
	}
	return rid, nil
}

// UndeclareResource forgets a previously declared resource id.
func (s *Session) UndeclareResource(ctx context.Context, rid uint64) error {
	s.sess.Registry.UnregisterResource(rid)
	decl := wire.Declare{Declarations: []wire.Declaration{wire.ForgetResourceDecl{Rid: rid}}}
	return s.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock)
}

// WriteOption configures a single write(reskey, payload, ...) call.
type WriteOption func(*writeOptions)

type writeOptions struct {
	encoding   string
	hasTime    bool
	timestamp  uint64
	congestion wire.CongestionControl
}

// WithEncoding attaches an encoding tag to the written payload.
func WithEncoding(encoding string) WriteOption {
	return func(o *writeOptions) { o.encoding = encoding }
}

// WithTimestamp attaches a logical timestamp to the written payload,
// consulted by query_collect's FULL consolidation to order replies.
func WithTimestamp(ts uint64) WriteOption {
	return func(o *writeOptions) { o.hasTime = true; o.timestamp = ts }
}

// WithCongestionControl selects Block (wait for space) or Drop
// (discard under pressure) for this write.
func WithCongestionControl(cc wire.CongestionControl) WriteOption {
	return func(o *writeOptions) { o.congestion = cc }
}

// Write publishes payload under keyExpr, reliably, carrying the key
// expression as a plain string. A Publisher declared ahead of time
// carries a bound resource id instead and avoids resending it.
func (s *Session) Write(ctx context.Context, keyExpr string, payload []byte, opts ...WriteOption) error {
	o := writeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	msg := wire.Data{
		Key:        wire.ResKey{Suffix: keyExpr},
		Congestion: o.congestion,
		Payload:    payload,
	}
	if o.encoding != "" || o.hasTime {
		msg.Info = &wire.DataInfo{Encoding: o.encoding, Timestamp: o.timestamp, HasTime: o.hasTime}
	}
	return s.sess.SendZenohMessage(ctx, msg, true, o.congestion)
}
