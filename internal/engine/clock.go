package engine

import (
	"sync"
	"time"
)

// Pass identifies one refresh pass.
type Pass struct {
	Seq int64     // strictly increasing, starts at 1
	At  time.Time // wall time the pass started
}

// Clock stamps refresh passes.
//
// Every RefreshSubscriptions call takes the next Pass so log lines from one
// pass correlate and health checks can tell whether the refresh loop is
// advancing. The sequence is logical; At is informational only.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last Pass
}

// NewClock creates a clock reading wall time from now. A nil now uses
// time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next starts a new pass and returns it.
func (c *Clock) Next() Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = Pass{Seq: c.last.Seq + 1, At: c.now()}
	return c.last
}

// Last returns the most recent pass, or the zero Pass before the first.
func (c *Clock) Last() Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
