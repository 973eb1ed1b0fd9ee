package opt

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so budgets can be driven by tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when Advance is called.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Budget tracks a fixed deadline for a whole solve invocation and derives
// per-call allowances from it.
type Budget struct {
	clock    Clock
	start    time.Time
	deadline time.Time
	margin   time.Duration
	floor    time.Duration
	maxCall  time.Duration
}

// NewBudget starts a budget of total length now. margin is reserved before
// every call; calls whose allowance falls below floor are not issued;
// maxCall caps a single call (0 means no cap).
func NewBudget(clock Clock, total, margin, floor, maxCall time.Duration) *Budget {
	if clock == nil {
		clock = SystemClock{}
	}
	now := clock.Now()
	return &Budget{clock: clock, start: now, deadline: now.Add(total), margin: margin, floor: floor, maxCall: maxCall}
}

// Elapsed is the time since the budget started.
func (b *Budget) Elapsed() time.Duration { return b.clock.Now().Sub(b.start) }

// Remaining is max(0, deadline - now).
func (b *Budget) Remaining() time.Duration {
	r := b.deadline.Sub(b.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}

// RemainingSeconds truncates Remaining to whole seconds.
func (b *Budget) RemainingSeconds() int64 { return int64(b.Remaining() / time.Second) }

// Allowance returns the time limit for the next oracle call and whether the
// call is worth issuing at all.
func (b *Budget) Allowance() (time.Duration, bool) {
	a := b.Remaining() - b.margin
	if a <= 0 || a < b.floor {
		return a, false
	}
	if b.maxCall > 0 && a > b.maxCall {
		a = b.maxCall
	}
	return a, true
}
