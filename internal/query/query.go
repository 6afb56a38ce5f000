// Package query drives the client side of the query engine: allocating a qid, sending the QUERY message, and routing
// inbound replies back to either an async callback or a synchronous
// Sink, applying reception-side consolidation (None/Lazy/Full) along
// the way.
package query

import (
	"context"
	"sort"
	"sync"

	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

// Sender is the narrow slice of session.Session the query engine
// needs: send a reliable QUERY and learn when the session is gone.
// Declared here, not imported from session, so a fake can drive tests
// without a live link.
type Sender interface {
	SendZenohMessage(ctx context.Context, msg wire.ZenohMessage, reliable bool, congestion wire.CongestionControl) error
	Done() <-chan struct{}
}

// Reply is one event delivered to a query's callback: either a DATA
// sample or, when Final is set, the end-of-replies marker (no
// payload). Cancelled distinguishes a FINAL caused by session_close
// from one caused by the router's own REPLY_CONTEXT.
type Reply struct {
	Key       string
	Payload   []byte
	Encoding  string
	Timestamp uint64
	HasTime   bool
	ReplierID []byte
	Final     bool
	Cancelled bool
}

// Callback receives every Reply for one query, in the order this
// engine decides to forward them.
type Callback func(Reply)

// pendingQuery is one in-flight query's consolidation state.
type pendingQuery struct {
	consolidation wire.Consolidation
	callback      Callback
	lazySeen      map[string]uint64 // "replierID|key" -> last forwarded timestamp
	fullBuf       []Reply
}

// Engine owns the pending-query table for one session and implements
// session.ReplySink.
type Engine struct {
	mu       sync.Mutex
	sender   Sender
	registry *registry.Registry
	pending  map[uint64]*pendingQuery
	log      zlog.Logger
}

func NewEngine(sender Sender, reg *registry.Registry, log zlog.Logger) *Engine {
	if log == nil {
		log = zlog.Nop{}
	}
	return &Engine{
		sender:   sender,
		registry: reg,
		pending:  make(map[uint64]*pendingQuery),
		log:      log,
	}
}

// Query allocates a qid, registers the pending query, and sends a
// QUERY message addressed to key/predicate.
// Replies arrive later via HandleReply, invoked from the session's
// reader goroutine. Queries ride the reliable lane.
func (e *Engine) Query(ctx context.Context, key, predicate string, target wire.Target, hasTarget bool, consolidation wire.Consolidation, cb Callback) (uint64, error) {
	qid := e.registry.NextID()

	pq := &pendingQuery{consolidation: consolidation, callback: cb}
	if consolidation == wire.ConsolidationLazy {
		pq.lazySeen = make(map[string]uint64)
	}

	e.mu.Lock()
	e.pending[qid] = pq
	e.mu.Unlock()

	msg := wire.Query{
		Key:           wire.ResKey{Rid: wire.NoResourceID, Suffix: key},
		Predicate:     predicate,
		QueryID:       qid,
		Target:        target,
		HasTarget:     hasTarget,
		Consolidation: consolidation,
	}
	if err := e.sender.SendZenohMessage(ctx, msg, true, wire.CongestionBlock); err != nil {
		e.mu.Lock()
		delete(e.pending, qid)
		e.mu.Unlock()
		return 0, err
	}
	return qid, nil
}

// HandleReply implements session.ReplySink, routing one DATA/UNIT
// wrapped in a REPLY_CONTEXT to the pending query it answers. A qid with no matching pending query (already
// finalized, or never ours) is silently dropped.
func (e *Engine) HandleReply(rc wire.ReplyContext, key string, payload []byte, info *wire.DataInfo) {
	e.mu.Lock()
	pq, ok := e.pending[rc.QueryID]
	if !ok {
		e.mu.Unlock()
		return
	}

	if rc.Final {
		delete(e.pending, rc.QueryID)
		buffered := pq.fullBuf
		e.mu.Unlock()

		sort.SliceStable(buffered, func(i, j int) bool { return buffered[i].Timestamp < buffered[j].Timestamp })
		for _, r := range buffered {
			e.invoke(pq.callback, r)
		}
		e.invoke(pq.callback, Reply{ReplierID: rc.ReplierID, Final: true})
		return
	}

	r := Reply{Key: key, Payload: payload, ReplierID: rc.ReplierID}
	if info != nil {
		r.Encoding, r.Timestamp, r.HasTime = info.Encoding, info.Timestamp, info.HasTime
	}

	switch pq.consolidation {
	case wire.ConsolidationFull:
		pq.fullBuf = append(pq.fullBuf, r)
		e.mu.Unlock()

	case wire.ConsolidationLazy:
		seenKey := string(rc.ReplierID) + "|" + key
		last, seen := pq.lazySeen[seenKey]
		forward := !seen || r.Timestamp >= last
		if forward {
			pq.lazySeen[seenKey] = r.Timestamp
		}
		e.mu.Unlock()
		if forward {
			e.invoke(pq.callback, r)
		}

	default: // wire.ConsolidationNone
		e.mu.Unlock()
		e.invoke(pq.callback, r)
	}
}

// CancelAll unregisters every pending query and delivers each a
// cancelled FINAL, matching session_close's rule that every pending
// query is woken rather than left blocked forever.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[uint64]*pendingQuery)
	e.mu.Unlock()

	for _, pq := range pending {
		e.invoke(pq.callback, Reply{Final: true, Cancelled: true})
	}
}

// invoke recovers a panic from a user callback, matching the
// session's reader-goroutine protection for subscriber/queryable
// callbacks.
func (e *Engine) invoke(cb Callback, r Reply) {
	if cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("query callback panicked", zlog.Fields{"panic": rec})
		}
	}()
	cb(r)
}
