package handshake

import (
	"context"
	"testing"
	"time"

	"github.com/frankplus/zenoh-pico/internal/link"
	"github.com/frankplus/zenoh-pico/internal/wire"
	"github.com/frankplus/zenoh-pico/internal/zbuf"
)

// testScoutAddress uses a private multicast range distinct from the
// production default, so the test never competes with a real peer on
// the host running it.
const testScoutAddress = "239.255.7.7:17447"

func TestScoutCollectsHello(t *testing.T) {
	router, err := link.JoinMulticast(testScoutAddress, "")
	if err != nil {
		t.Skipf("multicast unavailable in this sandbox: %v", err)
	}
	defer router.Close()

	remoteID := []byte{0xaa, 0xbb}
	go func() {
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			raw, src, err := router.ReceiveFrom(ctx)
			cancel()
			if err != nil {
				return // router.Close() unblocks this once the test ends
			}
			msg, err := wire.DecodeTransportMessage(zbuf.NewRBuf(raw))
			if err != nil {
				continue
			}
			if _, ok := msg.(wire.Scout); !ok {
				continue
			}
			hello := wire.Hello{Version: 1, WhatAmI: 1, ZenohID: remoteID, Locators: []string{"tcp/127.0.0.1:7447"}}
			payload, err := wire.EncodeTransportMessageBytes(hello)
			if err != nil {
				continue
			}
			sendCtx, sendCancel := context.WithTimeout(context.Background(), time.Second)
			_ = router.SendTo(sendCtx, payload, src)
			sendCancel()
		}
	}()

	hellos, err := Scout(context.Background(), ScoutConfig{
		MulticastAddress: testScoutAddress,
		Period:           50 * time.Millisecond,
		Timeout:          500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Scout: %v", err)
	}
	if len(hellos) != 1 {
		t.Fatalf("expected 1 distinct hello, got %d", len(hellos))
	}
	if string(hellos[0].ZenohID) != string(remoteID) {
		t.Errorf("ZenohID = %v, want %v", hellos[0].ZenohID, remoteID)
	}
	if len(hellos[0].Locators) != 1 || hellos[0].Locators[0] != "tcp/127.0.0.1:7447" {
		t.Errorf("Locators = %v", hellos[0].Locators)
	}
}

func TestScoutTimesOutWithNoReplies(t *testing.T) {
	probe, err := link.JoinMulticast("239.255.7.8:17448", "")
	if err != nil {
		t.Skipf("multicast unavailable in this sandbox: %v", err)
	}
	probe.Close()

	start := time.Now()
	hellos, err := Scout(context.Background(), ScoutConfig{
		MulticastAddress: "239.255.7.8:17448",
		Period:           50 * time.Millisecond,
		Timeout:          200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Scout: %v", err)
	}
	if len(hellos) != 0 {
		t.Errorf("expected no hellos, got %d", len(hellos))
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Scout returned after %v, want >= timeout", elapsed)
	}
}
