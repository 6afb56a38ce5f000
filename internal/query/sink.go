package query

import (
	"context"
	"sync"

	"github.com/frankplus/zenoh-pico/internal/wire"
)

// Value is one reply collected by a synchronous query, stripped of
// the Final/Cancelled bookkeeping that only the Engine needs.
type Value struct {
	Key       string
	Payload   []byte
	Encoding  string
	Timestamp uint64
	HasTime   bool
	ReplierID []byte
}

// Outcome is what a Sink resolves to: the full set of replies
// collected before FINAL, or Cancelled if the session closed first.
type Outcome struct {
	Values    []Value
	Cancelled bool
}

// Sink is the single-shot future behind query_collect's
// condition-variable wait: exactly one writer resolves
// it, any number of callers may Await the same Outcome.
type Sink struct {
	done chan struct{}
	once sync.Once
	out  Outcome
}

func NewSink() *Sink {
	return &Sink{done: make(chan struct{})}
}

func (s *Sink) resolve(out Outcome) {
	s.once.Do(func() {
		s.out = out
		close(s.done)
	})
}

// Await blocks until the sink resolves, the session closes, or ctx is
// done, whichever comes first. A session close resolves the sink as
// Cancelled rather than leaving the caller blocked.
func (s *Sink) Await(ctx context.Context, sessionClosed <-chan struct{}) (Outcome, error) {
	select {
	case <-s.done:
		return s.out, nil
	case <-sessionClosed:
		s.resolve(Outcome{Cancelled: true})
		return s.out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// QueryCollect is the synchronous variant of Query: it installs a
// callback that appends every DATA reply to a vector and resolves a
// Sink on FINAL, then blocks on that Sink.
func (e *Engine) QueryCollect(ctx context.Context, key, predicate string, target wire.Target, hasTarget bool, consolidation wire.Consolidation) (Outcome, error) {
	sink := NewSink()

	var mu sync.Mutex
	var values []Value

	cb := func(r Reply) {
		if r.Final {
			mu.Lock()
			collected := append([]Value(nil), values...)
			mu.Unlock()
			sink.resolve(Outcome{Values: collected, Cancelled: r.Cancelled})
			return
		}
		mu.Lock()
		values = append(values, Value{
			Key: r.Key, Payload: r.Payload, Encoding: r.Encoding,
			Timestamp: r.Timestamp, HasTime: r.HasTime, ReplierID: r.ReplierID,
		})
		mu.Unlock()
	}

	if _, err := e.Query(ctx, key, predicate, target, hasTarget, consolidation, cb); err != nil {
		return Outcome{}, err
	}
	return sink.Await(ctx, e.sender.Done())
}
