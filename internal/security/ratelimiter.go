// Package security guards the scout responder path against flooding
// and off-link spoofed replies: a per-source token bucket bounds how
// often one address may be serviced, and a source filter rejects scout
// traffic that couldn't plausibly have come from the local link.
package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultMaxEntries bounds the limiter's source map so an attacker
// spraying spoofed source addresses can't grow it without limit.
const defaultMaxEntries = 10000

// Limiter rate-limits inbound scout/query traffic per source address,
// a per-IP token-bucket built on the ecosystem's limiter instead of a
// hand-rolled sliding window.
type Limiter struct {
	mu         sync.Mutex
	limiters   map[string]*entry
	rps        rate.Limit
	burst      int
	maxEntries int
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a Limiter allowing rps sustained requests per
// second per source, with burst tolerance, tracking at most
// maxEntries distinct sources (0 selects defaultMaxEntries).
func NewLimiter(rps float64, burst int, maxEntries int) *Limiter {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Limiter{
		limiters:   make(map[string]*entry),
		rps:        rate.Limit(rps),
		burst:      burst,
		maxEntries: maxEntries,
	}
}

// Allow reports whether a request from source should proceed. The
// first call for a new source always succeeds.
func (l *Limiter) Allow(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[source]
	if !ok {
		if len(l.limiters) >= l.maxEntries {
			l.evictOldestLocked()
		}
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[source] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// evictOldestLocked drops the least-recently-seen source. Called with
// l.mu held.
func (l *Limiter) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range l.limiters {
		if first || e.lastSeen.Before(oldest) {
			oldestKey, oldest = k, e.lastSeen
			first = false
		}
	}
	if !first {
		delete(l.limiters, oldestKey)
	}
}

// Cleanup removes sources not seen within maxAge, bounding memory for
// a long-lived responder. Callers run it periodically, e.g. from a
// ticker alongside the keepalive loop.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}
