// Package registry holds the per-session tables of declared resources,
// subscriptions, publishers, and queryables, plus the shared id
// counter (NextID) that the query engine also draws query ids from;
// the pending-query table itself lives in internal/query. Every map is
// keyed by a stable integer id allocated by the declaring side.
package registry

import (
	"strings"
	"sync"

	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// Scope distinguishes a locally-declared resource from one announced
// by the remote side.
type Scope int

const (
	Local Scope = iota
	Remote
)

// Resource is a single entry in the resource table: an id bound to a
// key expression.
type Resource struct {
	ID    uint64
	Key   wire.ResKey
	Name  string
	Scope Scope
}

// DataCallback receives a sample delivered to a matching subscription.
// Fields mirror wire.DataInfo, flattened so this package never needs
// to import wire's message types and session/query never need to
// import registry's callback plumbing back.
type DataCallback func(key string, payload []byte, encoding string, timestamp uint64, hasTime bool)

// QueryCallback receives a query addressed to a matching queryable.
type QueryCallback func(qid uint64, replierID []byte, key string, predicate string)

// Subscription is a single declared subscriber: a key expression and
// the reliability/mode it was declared with.
type Subscription struct {
	ID       uint64
	Key      wire.ResKey
	Name     string
	Reliable bool
	Mode     wire.SubMode
	Scope    Scope
	Callback DataCallback
}

// Publisher is a single declared publisher.
type Publisher struct {
	ID    uint64
	Key   wire.ResKey
	Name  string
	Scope Scope
}

// Queryable is a single declared queryable.
type Queryable struct {
	ID       uint64
	Key      wire.ResKey
	Name     string
	Kind     uint64
	Scope    Scope
	Callback QueryCallback
}

// Registry owns the four id-keyed tables for one session. A single
// mutex guards all of them, matching the "one registry mutex" rule in
// invariant 4 of the session's data model.
type Registry struct {
	mu            sync.RWMutex
	resources     map[uint64]*Resource
	subscriptions map[uint64]*Subscription
	publishers    map[uint64]*Publisher
	queryables    map[uint64]*Queryable
	idSeq         uint64
}

func New() *Registry {
	return &Registry{
		resources:     make(map[uint64]*Resource),
		subscriptions: make(map[uint64]*Subscription),
		publishers:    make(map[uint64]*Publisher),
		queryables:    make(map[uint64]*Queryable),
	}
}

// NextID allocates a session-unique id from the same counter every
// declare operation and the query engine share, so a qid and a
// resource id can never collide.
func (r *Registry) NextID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idSeq++
	return r.idSeq
}

// RegisterResource binds id to key under scope. It rejects a
// collision against an existing id, per invariant 1 ("every id is
// unique within its category").
func (r *Registry) RegisterResource(scope Scope, id uint64, key wire.ResKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[id]; exists {
		return &zerrors.ResourceError{Operation: "register_resource", ID: id, Message: "resource id already registered"}
	}
	name := key.Suffix
	r.resources[id] = &Resource{ID: id, Key: key, Name: name, Scope: scope}
	return nil
}

func (r *Registry) UnregisterResource(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, id)
}

func (r *Registry) GetResourceByID(id uint64) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	return res, ok
}

// GetResourceByKey resolves a (rid, suffix) key to its effective name:
// if rid is bound, the bound name is concatenated with the suffix;
// otherwise the suffix alone is the name.
func (r *Registry) GetResourceByKey(key wire.ResKey) (string, error) {
	if key.Rid == wire.NoResourceID {
		return key.Suffix, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[key.Rid]
	if !ok {
		return "", &zerrors.ResourceError{Operation: "get_resource_by_key", ID: key.Rid, Message: "unknown resource id"}
	}
	return res.Name + key.Suffix, nil
}

func (r *Registry) RegisterSubscription(scope Scope, id uint64, key wire.ResKey, name string, reliable bool, mode wire.SubMode, cb DataCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subscriptions[id]; exists {
		return &zerrors.ResourceError{Operation: "register_subscription", ID: id, Message: "subscription id already registered"}
	}
	r.subscriptions[id] = &Subscription{ID: id, Key: key, Name: name, Reliable: reliable, Mode: mode, Scope: scope, Callback: cb}
	return nil
}

func (r *Registry) UnregisterSubscription(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscriptions, id)
}

// GetSubscriptionsMatching returns every subscription whose declared
// name (itself possibly a `*`/`**` pattern) matches the concrete key.
func (r *Registry) GetSubscriptionsMatching(key string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Subscription
	for _, s := range r.subscriptions {
		if KeyExprMatches(key, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) RegisterPublisher(scope Scope, id uint64, key wire.ResKey, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.publishers[id]; exists {
		return &zerrors.ResourceError{Operation: "register_publisher", ID: id, Message: "publisher id already registered"}
	}
	r.publishers[id] = &Publisher{ID: id, Key: key, Name: name, Scope: scope}
	return nil
}

func (r *Registry) UnregisterPublisher(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.publishers, id)
}

// GetPublishersMatching returns every publisher whose declared name
// (itself possibly a `*`/`**` pattern) matches the concrete key.
func (r *Registry) GetPublishersMatching(key string) []*Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Publisher
	for _, p := range r.publishers {
		if KeyExprMatches(key, p.Name) {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) RegisterQueryable(scope Scope, id uint64, key wire.ResKey, name string, kind uint64, cb QueryCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.queryables[id]; exists {
		return &zerrors.ResourceError{Operation: "register_queryable", ID: id, Message: "queryable id already registered"}
	}
	r.queryables[id] = &Queryable{ID: id, Key: key, Name: name, Kind: kind, Scope: scope, Callback: cb}
	return nil
}

func (r *Registry) UnregisterQueryable(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queryables, id)
}

// GetQueryablesMatching returns every queryable whose declared name
// (itself possibly a `*`/`**` pattern) matches the concrete key.
func (r *Registry) GetQueryablesMatching(key string) []*Queryable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Queryable
	for _, q := range r.queryables {
		if KeyExprMatches(key, q.Name) {
			out = append(out, q)
		}
	}
	return out
}

// KeyExprMatches reports whether name matches the `/`-separated
// pattern keyExpr, where a `*` segment matches exactly one segment and
// a `**` segment matches one or more segments.
func KeyExprMatches(name, keyExpr string) bool {
	nameSegs := strings.Split(name, "/")
	patSegs := strings.Split(keyExpr, "/")
	return matchSegments(nameSegs, patSegs)
}

func matchSegments(name, pat []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	head := pat[0]
	switch head {
	case "**":
		if len(name) == 0 {
			return false
		}
		if matchSegments(name[1:], pat[1:]) {
			return true
		}
		return matchSegments(name[1:], pat)
	case "*":
		if len(name) == 0 {
			return false
		}
		return matchSegments(name[1:], pat[1:])
	default:
		if len(name) == 0 || name[0] != head {
			return false
		}
		return matchSegments(name[1:], pat[1:])
	}
}
