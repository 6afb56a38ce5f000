package zenoh

import (
	"context"

	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

// Queryable is a declared queryable: a key expression (possibly
// carrying `*`/`**` wildcards) and the callback invoked for every
// matching query, on the session's reader goroutine.
type Queryable struct {
	sess    *Session
	id      uint64
	keyExpr string
}

// DeclareQueryable registers keyExpr with the router and arranges for
// cb to be invoked for every query addressed to a matching key. The
// session sends the terminating FINAL reply automatically once cb
// returns (or panics), matching the convention that the framework,
// not the callback, closes out a query.
func (s *Session) DeclareQueryable(ctx context.Context, keyExpr string, cb QueryableCallback) (*Queryable, error) {
	id := s.sess.Registry.NextID()
	if err := s.sess.Registry.RegisterQueryable(registry.Local, id, wire.ResKey{Suffix: keyExpr}, keyExpr, 0, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.qablesByID[id] = cb
	s.mu.Unlock()

	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.QueryableDecl{Key: wire.ResKey{Suffix: keyExpr}},
	}}
	if err := s.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock); err != nil {
		s.sess.Registry.UnregisterQueryable(id)
		s.mu.Lock()
		delete(s.qablesByID, id)
		s.mu.Unlock()
		return nil, err
	}

	return &Queryable{sess: s, id: id, keyExpr: keyExpr}, nil
}

// Undeclare forgets the queryable and notifies the router.
func (q *Queryable) Undeclare(ctx context.Context) error {
	q.sess.sess.Registry.UnregisterQueryable(q.id)
	q.sess.mu.Lock()
	delete(q.sess.qablesByID, q.id)
	q.sess.mu.Unlock()
	decl := wire.Declare{Declarations: []wire.Declaration{
		wire.ForgetQueryableDecl{Key: wire.ResKey{Suffix: q.keyExpr}},
	}}
	return q.sess.sess.SendZenohMessage(ctx, decl, true, wire.CongestionBlock)
}

// Query is one query delivered to a queryable's callback: the
// resolved concrete key the querier addressed, its predicate, and the
// means to send replies back before the callback returns.
type Query struct {
	sess      *Session
	qid       uint64
	key       string
	predicate string
}

func (q *Query) Key() string       { return q.key }
func (q *Query) Predicate() string { return q.predicate }

// ReplyOption configures a single Query.Reply call.
type ReplyOption func(*writeOptions)

// WithReplyEncoding attaches an encoding tag to a reply's payload.
func WithReplyEncoding(encoding string) ReplyOption {
	return func(o *writeOptions) { o.encoding = encoding }
}

// WithReplyTimestamp attaches a logical timestamp to a reply, used by
// the querier's FULL consolidation to order replies across repliers.
func WithReplyTimestamp(ts uint64) ReplyOption {
	return func(o *writeOptions) { o.hasTime = true; o.timestamp = ts }
}

// Reply sends one reply for this query, addressed back to whichever
// querier sent it. May be called any number of times before the
// callback returns; the session sends the FINAL reply once it does.
func (q *Query) Reply(key string, payload []byte, opts ...ReplyOption) error {
	o := writeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	rc := wire.ReplyContext{QueryID: q.qid, ReplierID: q.sess.sess.LocalPID, Final: false}
	data := wire.Data{Key: wire.ResKey{Suffix: key}, Payload: payload}
	if o.encoding != "" || o.hasTime {
		data.Info = &wire.DataInfo{Encoding: o.encoding, Timestamp: o.timestamp, HasTime: o.hasTime}
	}
	return q.sess.sess.SendZenohMessages(context.Background(), []wire.ZenohMessage{rc, data}, true, wire.CongestionBlock)
}

// HandleQuery implements session.QueryHandler: it looks up each
// matched queryable's callback by id, invokes it with panic recovery,
// and always sends the terminating FINAL reply once every callback
// has returned.
func (s *Session) HandleQuery(qid uint64, key string, predicate string, matched []*registry.Queryable) {
	q := &Query{sess: s, qid: qid, key: key, predicate: predicate}

	for _, qable := range matched {
		s.mu.Lock()
		cb := s.qablesByID[qable.ID]
		s.mu.Unlock()
		if cb == nil {
			continue
		}
		s.invokeQueryCallback(cb, q)
	}

	final := wire.ReplyContext{QueryID: qid, Final: true}
	unit := wire.Unit{Key: wire.ResKey{Suffix: key}}
	if err := s.sess.SendZenohMessages(context.Background(), []wire.ZenohMessage{final, unit}, true, wire.CongestionBlock); err != nil {
		s.log.Warn("failed to send final reply", zlog.Fields{"query_id": qid, "err": err.Error()})
	}
}

func (s *Session) invokeQueryCallback(cb QueryableCallback, q *Query) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("queryable callback panicked", zlog.Fields{"query_id": q.qid, "panic": r})
		}
	}()
	cb(q)
}
