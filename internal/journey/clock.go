package journey

import "sync/atomic"

// Clock is a monotonic logical clock stamping timeline events with
// strictly increasing sequence numbers.
//
// Sequence numbers record declaration/injection order and break ties in the
// time sort, so two events resolved to the same timestamp always order the
// same way across runs. Each timeline owns its own clock: sequence numbers
// are entity-scoped, which keeps a timeline's ordering independent of how
// many sibling entities were generated before it.
//
// Thread-safety: safe for concurrent use (atomic operations), though
// timeline construction is single-threaded per entity.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
