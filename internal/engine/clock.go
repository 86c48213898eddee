package engine

import "sync/atomic"

// Clock is a monotonic logical clock for ordering recorded transitions.
//
// All transitions handed to a Recorder are stamped with a strictly
// increasing seq number from this clock, so a trace reader can reconstruct
// order without relying on wall-clock resolution.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// so engines running distinct graphs may share one recorder.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
