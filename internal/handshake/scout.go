// Package handshake drives the two steps that precede an established
// session: an optional multicast scout for a peer
// locator, and the 4-way INIT/OPEN exchange that turns a dialed Link
// into a session.Session.
package handshake

import (
	"context"
	"net"
	"time"

	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zlog"
	"github.com/frankplus/zenoh-pico/internal/ztime"
)

// DefaultMulticastAddress is the scout group zenoh-pico joins when
// `multicast_address` is left unset in config.
const DefaultMulticastAddress = "224.0.0.224:7447"

// ScoutConfig bundles the parameters for a single scout round: resend the SCOUT datagram every Period until Timeout
// elapses, returning every distinct HELLO observed.
type ScoutConfig struct {
	MulticastAddress   string
	MulticastInterface string
	What               uint64
	Period             time.Duration
	Timeout            time.Duration
	Version            byte
	Log                zlog.Logger
	Clock              ztime.Clock
}

func (c ScoutConfig) withDefaults() ScoutConfig {
	if c.MulticastAddress == "" {
		c.MulticastAddress = DefaultMulticastAddress
	}
	if c.Period <= 0 {
		c.Period = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.Log == nil {
		c.Log = zlog.Nop{}
	}
	if c.Clock == nil {
		c.Clock = ztime.Real{}
	}
	return c
}

// Scout joins the scout multicast group, sends SCOUT datagrams every
// Period, and collects HELLO replies until Timeout elapses. The caller
// picks a locator from the first (or any) returned Hello; Scout itself
// makes no such choice`).
func Scout(ctx context.Context, cfg ScoutConfig) ([]wire.Hello, error) {
	cfg = cfg.withDefaults()

	mcast, err := link.JoinMulticast(cfg.MulticastAddress, cfg.MulticastInterface)
	if err != nil {
		return nil, err
	}
	defer mcast.Close()

	dest, err := net.ResolveUDPAddr("udp4", cfg.MulticastAddress)
	if err != nil {
		return nil, &zerrors.IoError{Operation: "resolve scout group", Err: err, Details: cfg.MulticastAddress}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	scoutMsg := wire.Scout{Version: cfg.Version, What: cfg.What}
	payload, err := wire.EncodeTransportMessageBytes(scoutMsg)
	if err != nil {
		return nil, err
	}

	var hellos []wire.Hello
	seen := make(map[string]bool)

	ticker := cfg.Clock.NewTicker(cfg.Period)
	defer ticker.Stop()

	if err := mcast.SendTo(ctx, payload, dest); err != nil {
		cfg.Log.Warn("scout send failed", zlog.Fields{"err": err.Error()})
	}

	replies := make(chan wire.Hello, 16)
	go recvHellos(ctx, mcast, cfg.Log, replies)

	for {
		select {
		case <-ctx.Done():
			return hellos, nil
		case <-ticker.C():
			if err := mcast.SendTo(ctx, payload, dest); err != nil {
				cfg.Log.Warn("scout resend failed", zlog.Fields{"err": err.Error()})
			}
		case h := <-replies:
			key := string(h.ZenohID)
			if !seen[key] {
				seen[key] = true
				hellos = append(hellos, h)
			}
		}
	}
}

func recvHellos(ctx context.Context, mcast *link.MulticastLink, log zlog.Logger, out chan<- wire.Hello) {
	for {
		raw, _, err := mcast.ReceiveFrom(ctx)
		if err != nil {
			return
		}
		msg, err := wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
		if err != nil {
			log.Debug("scout: dropping malformed datagram", zlog.Fields{"err": err.Error()})
			continue
		}
		hello, ok := msg.(wire.Hello)
		if !ok {
			continue
		}
		select {
		case out <- hello:
		case <-ctx.Done():
			return
		}
	}
}
