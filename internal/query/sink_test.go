package query

import (
	"context"
	"testing"
	"time"

	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

func TestQueryCollectOrdersRepliesByTimestamp(t *testing.T) {
	// Scenario S5, via the synchronous query_collect path.
	sender := newFakeSender()
	e := NewEngine(sender, registry.New(), zlog.Nop{})

	resultCh := make(chan Outcome, 1)
	go func() {
		out, err := e.QueryCollect(context.Background(), "/sensors/**", "", wire.TargetAll, false, wire.ConsolidationFull)
		if err != nil {
			t.Errorf("QueryCollect: %v", err)
		}
		resultCh <- out
	}()

	qid := waitForPendingQID(t, e)
	e.HandleReply(wire.ReplyContext{QueryID: qid}, "/sensors/a", []byte("a"), &wire.DataInfo{Timestamp: 3, HasTime: true})
	e.HandleReply(wire.ReplyContext{QueryID: qid}, "/sensors/b", []byte("b"), &wire.DataInfo{Timestamp: 1, HasTime: true})
	e.HandleReply(wire.ReplyContext{QueryID: qid}, "/sensors/c", []byte("c"), &wire.DataInfo{Timestamp: 2, HasTime: true})
	e.HandleReply(wire.ReplyContext{QueryID: qid, Final: true}, "", nil, nil)

	select {
	case out := <-resultCh:
		if out.Cancelled {
			t.Fatal("expected a normal completion, not Cancelled")
		}
		if len(out.Values) != 3 {
			t.Fatalf("expected 3 values, got %d", len(out.Values))
		}
		want := []string{"b", "c", "a"} // t1, t2, t3
		for i, v := range out.Values {
			if string(v.Payload) != want[i] {
				t.Errorf("Values[%d] = %q, want %q", i, v.Payload, want[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("QueryCollect never returned")
	}
}

func TestQueryCollectResolvesCancelledOnSessionClose(t *testing.T) {
	sender := newFakeSender()
	e := NewEngine(sender, registry.New(), zlog.Nop{})

	resultCh := make(chan Outcome, 1)
	go func() {
		out, err := e.QueryCollect(context.Background(), "/sensors/**", "", wire.TargetAll, false, wire.ConsolidationNone)
		if err != nil {
			t.Errorf("QueryCollect: %v", err)
		}
		resultCh <- out
	}()

	waitForPendingQID(t, e)
	close(sender.done)

	select {
	case out := <-resultCh:
		if !out.Cancelled {
			t.Error("expected Cancelled after session close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("QueryCollect never returned after session close")
	}
}

func TestQueryCollectPropagatesContextCancellation(t *testing.T) {
	sender := newFakeSender()
	e := NewEngine(sender, registry.New(), zlog.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.QueryCollect(ctx, "/sensors/**", "", wire.TargetAll, false, wire.ConsolidationNone)
	if err == nil {
		t.Fatal("expected QueryCollect to report the cancelled context")
	}
}

// waitForPendingQID polls until exactly one query is registered and
// returns its id, avoiding a fixed sleep before the goroutine under
// test has had a chance to call Query.
func waitForPendingQID(t *testing.T, e *Engine) uint64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		for qid := range e.pending {
			e.mu.Unlock()
			return qid
		}
		e.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no pending query registered in time")
	return 0
}
