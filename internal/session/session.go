package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/registry"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zlog"
	"github.com/frankplus/zenoh-pico/internal/zrand"
	"github.com/frankplus/zenoh-pico/internal/ztime"
)

// DefaultSNResolution is ZN_SN_RESOLUTION, the value a client
// proposes in INIT-Syn unless the handshake caller asks for something
// else.
const DefaultSNResolution uint64 = 1 << 28

// ReconnectPolicy decides what happens when the outbound path observes
// a write failure: retry immediately, retry with backoff, or give up.
// Invoked from the TX path's on_disconnect hook.
// Reconnect returns the replacement link without touching Session
// state itself -- SendZenohMessage already holds the TX mutex when it
// calls this, so the swap happens there, not inside the policy.
type ReconnectPolicy interface {
	Reconnect(ctx context.Context, s *Session) (link.Link, error)
}

// NoReconnect never retries; a write failure is always terminal.
type NoReconnect struct{}

func (NoReconnect) Reconnect(context.Context, *Session) (link.Link, error) {
	return nil, &zerrors.IoError{Operation: "on_disconnect", Err: context.Canceled, Details: "reconnection disabled"}
}

// RetryOnce re-dials the session's locator a single time. zenoh.Open
// installs this policy; New falls back to NoReconnect when
// Config.ReconnectPolicy is nil.
type RetryOnce struct {
	Dial func(ctx context.Context) (link.Link, error)
}

func (p RetryOnce) Reconnect(ctx context.Context, s *Session) (link.Link, error) {
	if p.Dial == nil {
		return nil, &zerrors.IoError{Operation: "on_disconnect", Err: context.Canceled, Details: "no dialer configured"}
	}
	newLink, err := p.Dial(ctx)
	if err != nil {
		return nil, &zerrors.IoError{Operation: "on_disconnect", Err: err, Details: "reconnect dial failed"}
	}
	return newLink, nil
}

// ExponentialBackoff retries the dial with a doubling delay up to
// MaxAttempts times.
type ExponentialBackoff struct {
	Dial        func(ctx context.Context) (link.Link, error)
	BaseDelay   time.Duration
	MaxAttempts int
	Clock       ztime.Clock
}

func (p ExponentialBackoff) Reconnect(ctx context.Context, s *Session) (link.Link, error) {
	if p.Dial == nil {
		return nil, &zerrors.IoError{Operation: "on_disconnect", Err: context.Canceled, Details: "no dialer configured"}
	}
	clock := p.Clock
	if clock == nil {
		clock = ztime.Real{}
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		newLink, err := p.Dial(ctx)
		if err == nil {
			return newLink, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clock.After(delay):
		}
		delay *= 2
	}
	return nil, &zerrors.IoError{Operation: "on_disconnect", Err: lastErr, Details: "exponential backoff exhausted"}
}

// Session owns one established transport session: SN counters, the
// owning link, the registry, and the TX mutex that every outbound
// write takes. Exactly one reader goroutine (dispatch.go) and any
// number of writer goroutines (serialized by txMu) touch it.
type Session struct {
	stateMu sync.RWMutex
	state   State

	txMu sync.Mutex
	link link.Link

	LocalPID  []byte
	RemotePID []byte

	SNResolution uint64
	snHalf       uint64

	snTxReliable   uint64
	snTxBestEffort uint64
	snRxReliable   uint64
	snRxBestEffort uint64

	Lease time.Duration

	Registry *registry.Registry

	dropLimiter *rate.Limiter

	onStateChange   func(State)
	reconnectPolicy ReconnectPolicy

	Log  zlog.Logger
	Rand zrand.Source

	remoteIDSeq uint64

	// reliableFrag/bestEffortFrag hold the in-progress fragment buffer
	// for each lane. Only the single reader thread (Run's loop, or a
	// caller driving Step directly) ever touches them.
	reliableFrag   reassembly
	bestEffortFrag reassembly

	closeOnce sync.Once
	closed    chan struct{}
}

// nextRemoteID allocates a locally-unique id for a remote declaration
// that carries no id of its own on the wire. Only called from the
// single reader goroutine, so no lock is needed.
func (s *Session) nextRemoteID() uint64 {
	s.remoteIDSeq++
	return (1 << 63) | s.remoteIDSeq
}

// Config bundles the constructor parameters for a freshly-handshaken
// Session; handshake.go fills this in once OPEN-Ack is received.
type Config struct {
	Link            link.Link
	LocalPID        []byte
	RemotePID       []byte
	SNResolution    uint64
	InitialTxSN     uint64
	InitialRxSN     uint64
	Lease           time.Duration
	Log             zlog.Logger
	Rand            zrand.Source
	ReconnectPolicy ReconnectPolicy
	OnStateChange   func(State)
	DropRate        float64 // tokens/sec for CongestionDrop; 0 selects a sane default
	DropBurst       int
}

func New(cfg Config) *Session {
	snRes := cfg.SNResolution
	if snRes == 0 {
		snRes = DefaultSNResolution
	}
	logger := cfg.Log
	if logger == nil {
		logger = zlog.Nop{}
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = zrand.Crypto{}
	}
	policy := cfg.ReconnectPolicy
	if policy == nil {
		policy = NoReconnect{}
	}
	dropRate := cfg.DropRate
	if dropRate <= 0 {
		dropRate = 1000
	}
	dropBurst := cfg.DropBurst
	if dropBurst <= 0 {
		dropBurst = 64
	}

	s := &Session{
		state:           StateEstablished,
		link:            cfg.Link,
		LocalPID:        cfg.LocalPID,
		RemotePID:       cfg.RemotePID,
		SNResolution:    snRes,
		snHalf:          snRes / 2,
		snTxReliable:    cfg.InitialTxSN % snRes,
		snTxBestEffort:  cfg.InitialTxSN % snRes,
		snRxReliable:    cfg.InitialRxSN % snRes,
		snRxBestEffort:  cfg.InitialRxSN % snRes,
		Lease:           cfg.Lease,
		Registry:        registry.New(),
		dropLimiter:     rate.NewLimiter(rate.Limit(dropRate), dropBurst),
		onStateChange:   cfg.OnStateChange,
		reconnectPolicy: policy,
		Log:             logger,
		Rand:            rnd,
		closed:          make(chan struct{}),
	}
	return s
}

// SwapLink replaces the session's link, used after a successful
// reconnect. Callers must hold no session locks.
func (s *Session) SwapLink(l link.Link) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	old := s.link
	s.link = l
	if old != nil {
		_ = old.Close()
	}
}

// errIfClosed returns a StateError once the session has reached
// StateClosed, so a post-Close caller gets a predictable error instead
// of whatever the torn-down link happens to return.
func (s *Session) errIfClosed(operation string) error {
	if st := s.State(); st == StateClosed {
		return &zerrors.StateError{Operation: operation, State: st.String(), Message: "session is closed"}
	}
	return nil
}

// nextSN returns the next sequence number for the given lane and
// advances its counter mod SNResolution. Must be called with txMu
// held.
func (s *Session) nextSN(reliable bool) uint64 {
	if reliable {
		sn := s.snTxReliable
		s.snTxReliable = (s.snTxReliable + 1) % s.SNResolution
		return sn
	}
	sn := s.snTxBestEffort
	s.snTxBestEffort = (s.snTxBestEffort + 1) % s.SNResolution
	return sn
}

// SendZenohMessage implements the outbound path: assign
// an SN, wrap in a FRAME (fragmenting if the encoded body exceeds the
// link MTU), write to the link, retrying once via the reconnect policy
// on failure.
func (s *Session) SendZenohMessage(ctx context.Context, msg wire.ZenohMessage, reliable bool, congestion wire.CongestionControl) error {
	if err := s.errIfClosed("send_zenoh_message"); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if congestion == wire.CongestionDrop {
		if !s.dropLimiter.Allow() {
			return nil
		}
	}

	body, err := wire.EncodeZenohMessageBytes(msg)
	if err != nil {
		return err
	}
	return s.sendFramedLocked(ctx, body, reliable)
}

// SendZenohMessages packs several zenoh messages into a single FRAME,
// so a decorator (ReplyContext, Attachment) and the message it
// decorates land in the same payload the reader dispatches together --
// splitting them across two SendZenohMessage calls would deliver them
// as two separate frames and the decorator would never reattach.
func (s *Session) SendZenohMessages(ctx context.Context, msgs []wire.ZenohMessage, reliable bool, congestion wire.CongestionControl) error {
	if err := s.errIfClosed("send_zenoh_messages"); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if congestion == wire.CongestionDrop {
		if !s.dropLimiter.Allow() {
			return nil
		}
	}

	var body []byte
	for _, msg := range msgs {
		b, err := wire.EncodeZenohMessageBytes(msg)
		if err != nil {
			return err
		}
		body = append(body, b...)
	}
	return s.sendFramedLocked(ctx, body, reliable)
}

// sendFramedLocked fragments body into one or more Frames and writes
// them to the link, retrying once via the reconnect policy on
// failure. Callers must hold txMu.
func (s *Session) sendFramedLocked(ctx context.Context, body []byte, reliable bool) error {
	mtu := s.link.MTU()
	frames := fragmentFrames(body, mtu, reliable, func() uint64 { return s.nextSN(reliable) })

	for _, frame := range frames {
		payload, err := wire.EncodeTransportMessageBytes(frame)
		if err != nil {
			return err
		}
		if werr := s.link.Send(ctx, payload); werr != nil {
			newLink, derr := s.reconnectPolicy.Reconnect(ctx, s)
			if derr != nil {
				return &zerrors.IoError{Operation: "send_zenoh_message", Err: werr, Details: "reconnect failed: " + derr.Error()}
			}
			old := s.link
			s.link = newLink
			_ = old.Close()

			if werr2 := s.link.Send(ctx, payload); werr2 != nil {
				return &zerrors.IoError{Operation: "send_zenoh_message", Err: werr2, Details: "second attempt after reconnect also failed"}
			}
		}
	}
	return nil
}

// fragmentFrames splits body into one or more Frame messages, each no
// larger than mtu. When more than one is needed, every Frame has
// Fragment set and every Frame but the last has More set.
func fragmentFrames(body []byte, mtu int, reliable bool, allocSN func() uint64) []wire.Frame {
	if mtu <= 0 || len(body) <= mtu {
		return []wire.Frame{{Reliable: reliable, SN: allocSN(), Payload: body}}
	}
	var frames []wire.Frame
	for off := 0; off < len(body); off += mtu {
		end := off + mtu
		if end > len(body) {
			end = len(body)
		}
		frames = append(frames, wire.Frame{
			Reliable: reliable,
			SN:       allocSN(),
			Fragment: true,
			More:     end < len(body),
			Payload:  body[off:end],
		})
	}
	return frames
}

// SendKeepAlive writes a bare KEEP_ALIVE transport message, resetting
// the peer's lease timer without consuming a sequence number.
func (s *Session) SendKeepAlive(ctx context.Context) error {
	if err := s.errIfClosed("send_keep_alive"); err != nil {
		return err
	}

	payload, err := wire.EncodeTransportMessageBytes(wire.KeepAlive{})
	if err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if werr := s.link.Send(ctx, payload); werr != nil {
		return &zerrors.IoError{Operation: "send_keep_alive", Err: werr}
	}
	return nil
}

// Close transitions the session through CLOSING to CLOSED: it
// attempts a best-effort CLOSE message, then tears down the link and
// wakes the dispatch loop.
func (s *Session) Close(ctx context.Context, reason CloseReason) error {
	s.setState(StateClosing)

	closeMsg := wire.Close{Reason: reason}
	payload, err := wire.EncodeTransportMessageBytes(closeMsg)
	if err == nil {
		s.txMu.Lock()
		_ = s.link.Send(ctx, payload)
		s.txMu.Unlock()
	}

	s.closeOnce.Do(func() { close(s.closed) })
	s.setState(StateClosed)

	s.txMu.Lock()
	lnk := s.link
	s.txMu.Unlock()
	if lnk != nil {
		return lnk.Close()
	}
	return nil
}

// Done returns a channel closed once the session has entered CLOSED,
// used by query Sinks to unblock collectors.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}
