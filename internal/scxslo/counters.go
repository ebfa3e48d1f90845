package scxslo

import "sync/atomic"

// CounterKind enumerates the per-CPU counters the engine maintains,
// mirroring the BPF_MAP_TYPE_PERCPU_ARRAY stats map in the original.
// Every kind is summed across CPUs on read and is monotonically
// non-decreasing.
type CounterKind int

const (
	// CounterLocalDispatches counts select_cpu calls where the
	// candidate CPU was idle and the task was dispatched locally.
	CounterLocalDispatches CounterKind = iota
	// CounterGlobalEnqueues counts every enqueue transition.
	CounterGlobalEnqueues
	// CounterDeadlineMissesTotal counts deadline misses that were
	// actually emitted as a DeadlineEvent (rate-limited drops are
	// counted separately).
	CounterDeadlineMissesTotal
	// CounterMissDurationNsSum accumulates miss_ns across every emitted
	// DeadlineEvent, so a consumer can derive the average miss.
	CounterMissDurationNsSum
	// CounterRateLimitedDrops counts deadline misses the Rate Limiter
	// suppressed, plus permitted misses the Event Sink had no room for.
	CounterRateLimitedDrops
	// CounterTaskStoreExhausted counts enqueue transitions that fell
	// back to the host's global queue because the Task Context Store
	// had no free slot. Optional per the counter contract, reported
	// here for operability.
	CounterTaskStoreExhausted

	counterKindCount
)

// Counters holds per-CPU, per-kind counters so that concurrent
// increments from different CPUs never contend on the same cache line.
type Counters struct {
	numCPUs int
	values  [][counterKindCount]atomic.Uint64
}

// NewCounters returns a zeroed Counters sized for numCPUs CPUs.
// numCPUs must be positive; a non-positive value is treated as 1.
func NewCounters(numCPUs int) *Counters {
	if numCPUs <= 0 {
		numCPUs = 1
	}
	return &Counters{
		numCPUs: numCPUs,
		values:  make([][counterKindCount]atomic.Uint64, numCPUs),
	}
}

// Inc increments kind's counter for cpu by one. An out-of-range cpu is
// a no-op: counters are diagnostic and must never panic the hot path.
func (c *Counters) Inc(cpu int, kind CounterKind) {
	c.Add(cpu, kind, 1)
}

// Add increments kind's counter for cpu by delta.
func (c *Counters) Add(cpu int, kind CounterKind, delta uint64) {
	if cpu < 0 || cpu >= c.numCPUs || kind < 0 || kind >= counterKindCount {
		return
	}
	c.values[cpu][kind].Add(delta)
}

// Sum returns kind's counter summed across every CPU.
func (c *Counters) Sum(kind CounterKind) uint64 {
	if kind < 0 || kind >= counterKindCount {
		return 0
	}
	var total uint64
	for cpu := range c.values {
		total += c.values[cpu][kind].Load()
	}
	return total
}

// CounterSnapshot is the read_counters() result: every required
// counter, summed across CPUs, cumulative since the engine started.
type CounterSnapshot struct {
	LocalDispatches     uint64
	GlobalEnqueues      uint64
	DeadlineMissesTotal uint64
	MissDurationNsSum   uint64
	RateLimitedDrops    uint64
	TaskStoreExhausted  uint64
}

// Snapshot returns the current totals for every counter.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		LocalDispatches:     c.Sum(CounterLocalDispatches),
		GlobalEnqueues:      c.Sum(CounterGlobalEnqueues),
		DeadlineMissesTotal: c.Sum(CounterDeadlineMissesTotal),
		MissDurationNsSum:   c.Sum(CounterMissDurationNsSum),
		RateLimitedDrops:    c.Sum(CounterRateLimitedDrops),
		TaskStoreExhausted:  c.Sum(CounterTaskStoreExhausted),
	}
}
