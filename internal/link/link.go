// Package link implements the transport-level abstraction a session
// runs on: a byte-oriented or datagram-oriented channel to one peer,
// reachable by a parsed locator.
package link

import "context"

// Link is the point-to-point channel a session multiplexes its
// transport messages over. A Link never interprets the bytes it
// carries; internal/session owns framing and internal/wire owns the
// codec.
type Link interface {
	// Send writes one encoded transport message. A stream link (TCP)
	// prepends the length prefix itself; for a datagram link (UDP)
	// the payload is the entire datagram.
	Send(ctx context.Context, payload []byte) error

	// Receive returns the next complete message. It blocks until one
	// arrives, ctx is done, or the link closes.
	Receive(ctx context.Context) ([]byte, error)

	// MTU bounds a single Send payload before fragmentation is
	// required.
	MTU() int

	// Reliable reports whether the underlying transport guarantees
	// in-order, lossless delivery (TCP) or not (UDP), which decides
	// whether the session may use the reliable lane over this link.
	Reliable() bool

	// Close releases the underlying socket. Concurrent Send/Receive
	// calls unblock with an error.
	Close() error
}
