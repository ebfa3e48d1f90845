package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

var (
	localDispatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_local_dispatches_total",
		Help: "Tasks dispatched to a CPU the host reported idle.",
	})
	globalEnqueues = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_global_enqueues_total",
		Help: "Tasks enqueued onto the deadline queue.",
	})
	deadlineMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_deadline_misses_total",
		Help: "Deadline misses that produced an emitted event.",
	})
	missDurationNsSum = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_miss_duration_ns_sum",
		Help: "Sum of miss durations in nanoseconds, for computing mean miss size.",
	})
	rateLimitedDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_rate_limited_drops_total",
		Help: "Deadline misses suppressed by the per-CPU rate limiter or discarded by a full event sink.",
	})
	taskStoreExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_task_store_exhausted_total",
		Help: "Enqueue attempts rejected because the task context store was at capacity.",
	})
	droppedEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scxslo_events_dropped_total",
		Help: "Deadline events the event sink discarded because it was full.",
	})
)

func init() {
	prometheus.MustRegister(
		localDispatches,
		globalEnqueues,
		deadlineMissesTotal,
		missDurationNsSum,
		rateLimitedDrops,
		taskStoreExhaustedTotal,
		droppedEventsTotal,
	)
}

// PromExporter brings the process-global Prometheus counters up to the
// engine's current cumulative totals. Prometheus counters have no Set,
// so it remembers the last snapshot it synced and adds only the delta.
type PromExporter struct {
	last        scxslo.CounterSnapshot
	droppedLast uint64
}

func NewPromExporter() *PromExporter {
	return &PromExporter{}
}

// Sync pushes the delta between snap and the last snapshot synced into
// the registered Prometheus counters, then remembers snap.
func (p *PromExporter) Sync(snap scxslo.CounterSnapshot) {
	addDelta(localDispatches, p.last.LocalDispatches, snap.LocalDispatches)
	addDelta(globalEnqueues, p.last.GlobalEnqueues, snap.GlobalEnqueues)
	addDelta(deadlineMissesTotal, p.last.DeadlineMissesTotal, snap.DeadlineMissesTotal)
	addDelta(missDurationNsSum, p.last.MissDurationNsSum, snap.MissDurationNsSum)
	addDelta(rateLimitedDrops, p.last.RateLimitedDrops, snap.RateLimitedDrops)
	addDelta(taskStoreExhaustedTotal, p.last.TaskStoreExhausted, snap.TaskStoreExhausted)
	p.last = snap
}

// SyncDropped records delta dropped events into the Prometheus counter.
func (p *PromExporter) SyncDropped(dropped uint64) {
	last := p.droppedLast
	if dropped > last {
		droppedEventsTotal.Add(float64(dropped - last))
	}
	p.droppedLast = dropped
}

func addDelta(c prometheus.Counter, previous, current uint64) {
	if current > previous {
		c.Add(float64(current - previous))
	}
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
