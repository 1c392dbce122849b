package devkit

import (
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-btpay/core"
)

// ManualClock is a core.Clock driven by Advance. Due callbacks run on the
// goroutine calling Advance, in deadline order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	nextID  uint64
	pending map[uint64]*manualTimer
}

type manualTimer struct {
	clock    *ManualClock
	id       uint64
	deadline time.Time
	delay    time.Duration
	fn       func()
}

func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &ManualClock{now: start, pending: map[uint64]*manualTimer{}}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(delay time.Duration, fn func()) core.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	c.nextID++
	timer := &manualTimer{
		clock:    c,
		id:       c.nextID,
		deadline: c.now.Add(delay),
		delay:    delay,
		fn:       fn,
	}
	c.pending[timer.id] = timer
	return timer
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.pending[t.id]; !ok {
		return false
	}
	delete(t.clock.pending, t.id)
	return true
}

// Advance moves time forward by d and fires every callback that falls due,
// including ones scheduled by callbacks fired during this call.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.pending, next.id)
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		c.mu.Unlock()
		next.fn()
	}
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	var next *manualTimer
	for _, timer := range c.pending {
		if timer.deadline.After(target) {
			continue
		}
		if next == nil || timer.deadline.Before(next.deadline) ||
			(timer.deadline.Equal(next.deadline) && timer.id < next.id) {
			next = timer
		}
	}
	return next
}

func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PendingDelays lists the original delays of pending callbacks, in
// scheduling order.
func (c *ManualClock) PendingDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	timers := make([]*manualTimer, 0, len(c.pending))
	for _, timer := range c.pending {
		timers = append(timers, timer)
	}
	sort.Slice(timers, func(i, j int) bool { return timers[i].id < timers[j].id })
	out := make([]time.Duration, 0, len(timers))
	for _, timer := range timers {
		out = append(out, timer.delay)
	}
	return out
}

var _ core.Clock = (*ManualClock)(nil)
