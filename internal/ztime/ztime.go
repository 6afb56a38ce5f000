// Package ztime defines the time-source external collaborator used
// for scout resend ticks and reconnect backoff delays, so those can be
// faked in tests without real sleeps.
package ztime

import "time"

// Clock is the time-source abstraction.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors the subset of *time.Ticker the session layer uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the production Clock, backed directly by the time package.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
