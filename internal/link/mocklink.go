package link

import (
	"context"
	"sync"

	"github.com/frankplus/zenoh-pico/internal/zerrors"
)

// MockLink is an in-memory Link test double: Send appends to a
// recorded-call list and feeds an optional paired MockLink's inbox, so
// two MockLinks can stand in for both ends of a session in a test
// without a real socket.
type MockLink struct {
	mu        sync.Mutex
	sendCalls [][]byte
	inbox     chan []byte
	closed    bool
	reliable  bool
	mtu       int
	peer      *MockLink
}

// NewMockLinkPair returns two MockLinks wired to each other: a Send
// on one becomes a Receive on the other.
func NewMockLinkPair(reliable bool) (a, b *MockLink) {
	a = &MockLink{inbox: make(chan []byte, 64), reliable: reliable, mtu: 65535}
	b = &MockLink{inbox: make(chan []byte, 64), reliable: reliable, mtu: 65535}
	a.peer, b.peer = b, a
	return a, b
}

// NewMockLink returns a standalone MockLink with no peer; Send only
// records calls, Receive blocks until ctx is done.
func NewMockLink(reliable bool) *MockLink {
	return &MockLink{inbox: make(chan []byte, 64), reliable: reliable, mtu: 65535}
}

func (m *MockLink) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return &zerrors.IoError{Operation: "send on mock link", Details: "link closed"}
	}
	cp := append([]byte(nil), payload...)
	m.sendCalls = append(m.sendCalls, cp)
	peer := m.peer
	m.mu.Unlock()

	if peer == nil {
		return nil
	}
	select {
	case peer.inbox <- cp:
		return nil
	case <-ctx.Done():
		return &zerrors.IoError{Operation: "send on mock link", Err: ctx.Err()}
	}
}

func (m *MockLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-m.inbox:
		if !ok {
			return nil, &zerrors.IoError{Operation: "receive on mock link", Details: "link closed"}
		}
		return b, nil
	case <-ctx.Done():
		return nil, &zerrors.IoError{Operation: "receive on mock link", Err: ctx.Err()}
	}
}

func (m *MockLink) MTU() int       { return m.mtu }
func (m *MockLink) Reliable() bool { return m.reliable }

// SetMTU overrides the link's reported MTU, e.g. to exercise
// fragmentation in a test without a real small-MTU transport.
func (m *MockLink) SetMTU(mtu int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mtu = mtu
}

func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.inbox)
	return nil
}

// SendCalls returns every payload this link has sent, for test
// assertions.
func (m *MockLink) SendCalls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sendCalls))
	copy(out, m.sendCalls)
	return out
}

var _ Link = (*MockLink)(nil)
