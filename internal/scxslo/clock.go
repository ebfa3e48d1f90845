package scxslo

import (
	"sync/atomic"
	"time"
)

// Clock is the engine's sole source of "now": a monotonic nanosecond
// timestamp. It must never block.
type Clock interface {
	Now() uint64
}

// SystemClock reports elapsed monotonic nanoseconds since it was
// created, mirroring the host's bpf_ktime_get_ns() (nanoseconds since
// boot) closely enough for deadline arithmetic: only relative
// differences between two calls ever matter to the engine.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a Clock anchored at the current monotonic
// time.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

func (c *SystemClock) Now() uint64 {
	return uint64(time.Since(c.epoch).Nanoseconds())
}

// ManualClock is a Clock a test can advance explicitly, for
// deterministic control over deadline computation and miss detection.
type ManualClock struct {
	nowNS atomic.Uint64
}

// NewManualClock returns a ManualClock starting at the given
// nanosecond value.
func NewManualClock(startNS uint64) *ManualClock {
	c := &ManualClock{}
	c.nowNS.Store(startNS)
	return c
}

func (c *ManualClock) Now() uint64 {
	return c.nowNS.Load()
}

// Set pins the clock to an absolute nanosecond value.
func (c *ManualClock) Set(ns uint64) {
	c.nowNS.Store(ns)
}

// Advance moves the clock forward by delta nanoseconds and returns the
// new value.
func (c *ManualClock) Advance(delta uint64) uint64 {
	return c.nowNS.Add(delta)
}
