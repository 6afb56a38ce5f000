package session

import (
	"context"
	"errors"

	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

// ReplySink receives DATA/UNIT messages that arrive decorated with a
// REPLY_CONTEXT, routing them to the query engine instead of the
// local subscription table.
type ReplySink interface {
	HandleReply(rc wire.ReplyContext, key string, payload []byte, info *wire.DataInfo)
}

// QueryHandler receives a QUERY addressed to a local queryable; the
// handle remembers qid/replier_id so a later reply can be correlated.
type QueryHandler interface {
	HandleQuery(qid uint64, key string, predicate string, matched []*registry.Queryable)
}

// DispatchOptions wires the callback sinks the dispatch loop forwards
// decoded messages to. All fields are optional; a nil sink silently
// drops the corresponding message class.
type DispatchOptions struct {
	Replies ReplySink
	Queries QueryHandler
}

// reassembly holds the in-progress fragment buffer for one lane.
type reassembly struct {
	buf []byte
}

// Run is the session's dedicated read loop: one goroutine decodes
// transport messages and dispatches their contents until ctx is done,
// the session closes, or the link errs unrecoverably.
func (s *Session) Run(ctx context.Context, opts DispatchOptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		default:
		}

		closed, err := s.Step(ctx, opts)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
	}
}

// Step processes exactly one inbound transport message: the unit of
// work a caller drives by hand when it owns the read loop instead of
// handing it to Run. closed reports whether the message was a CLOSE
// or an out-of-sequence INIT/OPEN that closed the session, at which
// point the caller should stop calling Step.
func (s *Session) Step(ctx context.Context, opts DispatchOptions) (closed bool, err error) {
	if err := s.errIfClosed("step"); err != nil {
		return false, err
	}

	raw, err := s.link.Receive(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		s.Log.Warn("link receive failed, dropping and continuing", zlog.Fields{"err": err.Error()})
		return false, nil
	}

	msg, err := wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
	if err != nil {
		s.Log.Warn("failed to decode transport message, dropping", zlog.Fields{"err": err.Error()})
		return false, nil
	}

	return s.handleTransportMessage(ctx, msg, &s.reliableFrag, &s.bestEffortFrag, opts), nil
}

func (s *Session) handleTransportMessage(ctx context.Context, msg wire.TransportMessage, reliableFrag, bestEffortFrag *reassembly, opts DispatchOptions) (closed bool) {
	switch v := msg.(type) {
	case wire.InitSyn, wire.InitAck, wire.OpenSyn, wire.OpenAck:
		// INIT/OPEN in an established session is out of sequence.
		s.Log.Warn("unexpected handshake message in established session", zlog.Fields{})
		_ = s.Close(ctx, CloseInvalid)
		return true

	case wire.KeepAlive:
		// Accepted and otherwise ignored: the session keeps no lease
		// timer for the peer, so receipt changes no state.
		return false

	case wire.Close:
		s.setState(StateClosed)
		s.closeOnce.Do(func() { close(s.closed) })
		return true

	case wire.Frame:
		frag := bestEffortFrag
		if v.Reliable {
			frag = reliableFrag
		}
		s.dispatchFrame(v, frag, opts)
		return false

	default:
		s.Log.Warn("unknown transport message type reached dispatch", zlog.Fields{})
		return false
	}
}

func (s *Session) dispatchFrame(f wire.Frame, frag *reassembly, opts DispatchOptions) {
	expected := s.snRxBestEffort
	if f.Reliable {
		expected = s.snRxReliable
	}
	if f.SN != expected && !snPrecedes(s.snHalf, expected, f.SN) {
		if f.Reliable {
			s.Log.Warn("reliable frame SN out of window, closing", zlog.Fields{"expected": expected, "got": f.SN})
			_ = s.Close(context.Background(), CloseInvalid)
		} else {
			s.Log.Debug("best-effort frame SN out of window, dropping", zlog.Fields{"expected": expected, "got": f.SN})
		}
		return
	}
	next := (f.SN + 1) % s.SNResolution
	if f.Reliable {
		s.snRxReliable = next
	} else {
		s.snRxBestEffort = next
	}

	if f.Fragment {
		frag.buf = append(frag.buf, f.Payload...)
		if f.More {
			return
		}
		payload := frag.buf
		frag.buf = nil
		s.dispatchZenohPayload(payload, opts)
		return
	}
	s.dispatchZenohPayload(f.Payload, opts)
}

// dispatchZenohPayload decodes every zenoh message packed into one
// (possibly reassembled) frame payload and routes each to its handler.
func (s *Session) dispatchZenohPayload(payload []byte, opts DispatchOptions) {
	r := zbuf.NewRBuf(payload)
	var pendingReply *wire.ReplyContext

	for r.Remaining() > 0 {
		msg, err := wire.DecodeZenohMessage(r)
		if err != nil {
			s.Log.Warn("failed to decode zenoh message, dropping rest of frame", zlog.Fields{"err": err.Error()})
			return
		}

		switch v := msg.(type) {
		case wire.ReplyContext:
			rc := v
			pendingReply = &rc
			continue

		case wire.Attachment:
			// Carried verbatim alongside the message that follows; this
			// client has no consumer for it yet.
			continue

		case wire.Declare:
			s.applyDeclare(v)

		case wire.Data:
			key, err := s.Registry.GetResourceByKey(v.Key)
			if err != nil {
				s.Log.Warn("data references unknown resource", zlog.Fields{"err": err.Error()})
				pendingReply = nil
				continue
			}
			if pendingReply != nil {
				if opts.Replies != nil {
					opts.Replies.HandleReply(*pendingReply, key, v.Payload, v.Info)
				}
			} else {
				s.deliverToSubscribers(key, v.Payload, v.Info)
			}

		case wire.Unit:
			key, _ := s.Registry.GetResourceByKey(v.Key)
			if pendingReply != nil && opts.Replies != nil {
				opts.Replies.HandleReply(*pendingReply, key, nil, nil)
			}

		case wire.Query:
			key, err := s.Registry.GetResourceByKey(v.Key)
			if err == nil && opts.Queries != nil {
				matched := s.Registry.GetQueryablesMatching(key)
				opts.Queries.HandleQuery(v.QueryID, key, v.Predicate, matched)
			}

		case wire.Pull:
			// Pull is acknowledged by the publisher side re-delivering
			// buffered samples; no local state to update here.
		}
		pendingReply = nil
	}
}

func (s *Session) deliverToSubscribers(key string, payload []byte, info *wire.DataInfo) {
	subs := s.Registry.GetSubscriptionsMatching(key)
	for _, sub := range subs {
		if sub.Callback == nil {
			continue
		}
		encoding := ""
		var ts uint64
		var hasTime bool
		if info != nil {
			encoding, ts, hasTime = info.Encoding, info.Timestamp, info.HasTime
		}
		s.invokeCallback(sub.ID, func() {
			sub.Callback(key, payload, encoding, ts, hasTime)
		})
	}
}

// invokeCallback recovers a panic from a user callback and logs it
// rather than letting it unwind the reader goroutine.
func (s *Session) invokeCallback(id uint64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("subscriber callback panicked", zlog.Fields{"subscription_id": id, "panic": r})
		}
	}()
	fn()
}

// applyDeclare applies each declaration to the REMOTE side of the
// registry. Remote publisher/subscriber/queryable
// declarations carry no id of their own on the wire (only a key), so
// this session allocates one locally via a monotonic counter to
// satisfy invariant 1 ("every id is unique within its category");
// the corresponding forget declarations are matched by key instead of
// id, since that's all the wire format gives them.
func (s *Session) applyDeclare(d wire.Declare) {
	for _, decl := range d.Declarations {
		switch v := decl.(type) {
		case wire.ResourceDecl:
			_ = s.Registry.RegisterResource(registry.Remote, v.Rid, v.Key)
		case wire.ForgetResourceDecl:
			s.Registry.UnregisterResource(v.Rid)
		case wire.PublisherDecl:
			name, _ := s.Registry.GetResourceByKey(v.Key)
			_ = s.Registry.RegisterPublisher(registry.Remote, s.nextRemoteID(), v.Key, name)
		case wire.ForgetPublisherDecl:
			name, _ := s.Registry.GetResourceByKey(v.Key)
			s.unregisterRemotePublisherByName(name)
		case wire.SubscriberDecl:
			name, _ := s.Registry.GetResourceByKey(v.Key)
			_ = s.Registry.RegisterSubscription(registry.Remote, s.nextRemoteID(), v.Key, name, v.Reliable, v.Mode, nil)
		case wire.ForgetSubscriberDecl:
			name, _ := s.Registry.GetResourceByKey(v.Key)
			s.unregisterRemoteSubscriptionByName(name)
		case wire.QueryableDecl:
			name, _ := s.Registry.GetResourceByKey(v.Key)
			_ = s.Registry.RegisterQueryable(registry.Remote, s.nextRemoteID(), v.Key, name, 0, nil)
		case wire.ForgetQueryableDecl:
			name, _ := s.Registry.GetResourceByKey(v.Key)
			s.unregisterRemoteQueryableByName(name)
		}
	}
}

func (s *Session) unregisterRemotePublisherByName(name string) {
	for _, p := range s.Registry.GetPublishersMatching(name) {
		if p.Scope == registry.Remote && p.Name == name {
			s.Registry.UnregisterPublisher(p.ID)
		}
	}
}

func (s *Session) unregisterRemoteSubscriptionByName(name string) {
	for _, sub := range s.Registry.GetSubscriptionsMatching(name) {
		if sub.Scope == registry.Remote && sub.Name == name {
			s.Registry.UnregisterSubscription(sub.ID)
		}
	}
}

func (s *Session) unregisterRemoteQueryableByName(name string) {
	for _, q := range s.Registry.GetQueryablesMatching(name) {
		if q.Scope == registry.Remote && q.Name == name {
			s.Registry.UnregisterQueryable(q.ID)
		}
	}
}
