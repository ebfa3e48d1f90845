package observability

import "github.com/srijanshukla18/scx-slo/internal/scxslo"

// PublishEngineCounters copies an engine's cumulative counter snapshot
// into reg as a flat set of named counters, for the JSON snapshot
// endpoint and RenderPrometheus. It is safe to call repeatedly; each
// call overwrites the previous values rather than accumulating deltas,
// since the engine's own counters are already cumulative since start.
func PublishEngineCounters(reg *Registry, snap scxslo.CounterSnapshot) {
	set := func(name string, value uint64) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		reg.counters[name] = metricEntry{name: name, value: float64(value)}
	}
	set("scxslo_local_dispatches_total", snap.LocalDispatches)
	set("scxslo_global_enqueues_total", snap.GlobalEnqueues)
	set("scxslo_deadline_misses_total", snap.DeadlineMissesTotal)
	set("scxslo_miss_duration_ns_sum", snap.MissDurationNsSum)
	set("scxslo_rate_limited_drops_total", snap.RateLimitedDrops)
	set("scxslo_task_store_exhausted_total", snap.TaskStoreExhausted)
}
