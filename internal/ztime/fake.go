package ztime

import (
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic timer tests:
// Advance fires any After/ticker channels whose deadline has
// passed.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	period   time.Duration // zero for a one-shot After
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch, period: d})
	return &fakeTicker{fake: f, ch: ch}
}

// Advance moves the clock forward by d, firing any waiter whose
// deadline has now passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	var remaining []fakeWaiter
	for _, w := range f.waiters {
		if !f.now.Before(w.deadline) {
			select {
			case w.ch <- f.now:
			default:
			}
			if w.period > 0 {
				w.deadline = f.now.Add(w.period)
				remaining = append(remaining, w)
			}
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
}

type fakeTicker struct {
	fake *Fake
	ch   chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	var remaining []fakeWaiter
	for _, w := range t.fake.waiters {
		if w.ch != t.ch {
			remaining = append(remaining, w)
		}
	}
	t.fake.waiters = remaining
}
