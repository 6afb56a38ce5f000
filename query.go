package zenoh

import (
	"context"

	"github.com/frankplus/zenoh-pico/internal/query"
	"github.com/frankplus/zenoh-pico/internal/wire"
)

// Consolidation selects how replies from multiple queryables are
// merged before reaching a query's callback.
type Consolidation = wire.Consolidation

const (
	ConsolidationNone = wire.ConsolidationNone
	ConsolidationLazy = wire.ConsolidationLazy
	ConsolidationFull = wire.ConsolidationFull
)

// Target selects which matching queryables a query addresses.
type Target = wire.Target

const (
	TargetAll       = wire.TargetAll
	TargetBestMatch = wire.TargetBestMatch
	TargetComplete  = wire.TargetComplete
)

// Reply is one event delivered to a query's callback: either a data
// sample or, when Final is set, the end-of-replies marker.
type Reply = query.Reply

// Value is one reply collected by QueryCollect.
type Value = query.Value

// Outcome is the full set of replies QueryCollect resolves to.
type Outcome = query.Outcome

// ReplyCallback receives every Reply for one query, in the order the
// session's consolidation mode decides to forward them.
type ReplyCallback = query.Callback

// QueryOption configures a single Query/QueryCollect call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	target    Target
	hasTarget bool
}

// WithTarget restricts a query to a specific subset of matching
// queryables instead of the default (all of them).
func WithTarget(t Target) QueryOption {
	return func(o *queryOptions) { o.target = t; o.hasTarget = true }
}

// Query sends a query addressed to keyExpr/predicate and streams every
// reply to cb as it arrives, consolidated according to consolidation.
// cb runs on the session's reader goroutine.
func (s *Session) Query(ctx context.Context, keyExpr, predicate string, consolidation Consolidation, cb ReplyCallback, opts ...QueryOption) error {
	o := queryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	_, err := s.query.Query(ctx, keyExpr, predicate, o.target, o.hasTarget, consolidation, cb)
	return err
}

// QueryCollect sends a query and blocks until every reply has
// arrived (FINAL received) or the session closes, returning every
// reply collected meanwhile.
func (s *Session) QueryCollect(ctx context.Context, keyExpr, predicate string, consolidation Consolidation, opts ...QueryOption) (Outcome, error) {
	o := queryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return s.query.QueryCollect(ctx, keyExpr, predicate, o.target, o.hasTarget, consolidation)
}
