// Package zenoh provides a client for the zenoh-pico wire protocol:
// resource/publisher/subscriber/queryable declarations, publish,
// subscribe, and query/reply over a single session to one peer
// (router or another zenoh-pico/zenoh client).
//
// # Overview
//
// A Session is opened against one peer, reached either by pinning a
// locator in config or by scouting the local multicast group for a
// HELLO:
//
//	cfg := config.Client("tcp/127.0.0.1:7447")
//	sess, err := zenoh.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close(ctx)
//
// # Publish / Subscribe
//
//	sub, err := sess.DeclareSubscriber(ctx, "demo/example/**", true, func(s zenoh.Sample) {
//	    fmt.Printf("%s: %s\n", s.Key, s.Payload)
//	})
//	defer sub.Undeclare(ctx)
//
//	err = sess.Write(ctx, "demo/example/hello", []byte("hello"))
//
// Or through a declared Publisher, which resolves the key expression
// to a numeric resource id once instead of on every write:
//
//	pub, err := sess.DeclarePublisher(ctx, "demo/example/hello")
//	defer pub.Undeclare(ctx)
//	err = pub.Write(ctx, []byte("hello"))
//
// DeclarePullSubscriber registers in pull mode instead: the router
// buffers matching samples and Subscriber.Pull releases whatever has
// accumulated since the last call.
//
// # Query / Reply
//
// A Queryable answers queries addressed to a matching key expression:
//
//	qable, err := sess.DeclareQueryable(ctx, "demo/example/**", func(q *zenoh.Query) {
//	    q.Reply(q.Key(), []byte("pong"))
//	})
//	defer qable.Undeclare(ctx)
//
// A querier either streams replies through a callback or blocks for
// every reply at once:
//
//	err = sess.Query(ctx, "demo/example/**", "", zenoh.ConsolidationFull, func(r zenoh.Reply) {
//	    if !r.Final {
//	        fmt.Printf("reply: %s\n", r.Payload)
//	    }
//	})
//
//	outcome, err := sess.QueryCollect(ctx, "demo/example/**", "", zenoh.ConsolidationFull)
//
// # Concurrency
//
// Declarations, Write, Query, and QueryCollect may be called from any
// goroutine; the session serializes outbound writes internally.
// Subscriber and Queryable callbacks run on the session's single
// reader goroutine, in the order messages arrive, with panics
// recovered and logged rather than propagated.
//
// # Resource Management
//
// Close tears the session down: it sends a best-effort CLOSE, stops
// the reader goroutine, and wakes every pending QueryCollect as
// cancelled. Every public operation after Close returns a StateError.
package zenoh
