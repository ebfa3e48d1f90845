package observability

import (
	"strings"
	"testing"

	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

func TestPublishEngineCountersFeedsSnapshot(t *testing.T) {
	r := NewRegistry()
	PublishEngineCounters(r, scxslo.CounterSnapshot{
		LocalDispatches:     4,
		DeadlineMissesTotal: 1,
		RateLimitedDrops:    2,
	})

	snap := r.Snapshot()
	values := make(map[string]float64, len(snap.Counters))
	for _, p := range snap.Counters {
		values[p.Name] = p.Value
	}
	if values["scxslo_local_dispatches_total"] != 4 {
		t.Fatalf("scxslo_local_dispatches_total = %v, want 4", values["scxslo_local_dispatches_total"])
	}
	if values["scxslo_deadline_misses_total"] != 1 {
		t.Fatalf("scxslo_deadline_misses_total = %v, want 1", values["scxslo_deadline_misses_total"])
	}
	if values["scxslo_rate_limited_drops_total"] != 2 {
		t.Fatalf("scxslo_rate_limited_drops_total = %v, want 2", values["scxslo_rate_limited_drops_total"])
	}
}

func TestPublishEngineCountersOverwritesRatherThanAccumulates(t *testing.T) {
	r := NewRegistry()
	PublishEngineCounters(r, scxslo.CounterSnapshot{GlobalEnqueues: 10})
	PublishEngineCounters(r, scxslo.CounterSnapshot{GlobalEnqueues: 3})

	snap := r.Snapshot()
	for _, p := range snap.Counters {
		if p.Name == "scxslo_global_enqueues_total" && p.Value != 3 {
			t.Fatalf("scxslo_global_enqueues_total = %v, want 3 (overwritten, not accumulated)", p.Value)
		}
	}
}

func TestRenderPrometheus(t *testing.T) {
	r := NewRegistry()
	PublishEngineCounters(r, scxslo.CounterSnapshot{DeadlineMissesTotal: 7})

	out := r.RenderPrometheus()
	if !strings.Contains(out, "scxslo_deadline_misses_total 7") {
		t.Fatalf("missing deadline miss counter in output: %s", out)
	}
}

func TestSanitizeMetricNameReplacesInvalidCharacters(t *testing.T) {
	if got := sanitizeMetricName("bad.name!"); got != "bad_name_" {
		t.Fatalf("sanitizeMetricName() = %q, want %q", got, "bad_name_")
	}
	if got := sanitizeMetricName(""); got != "scxslo_metric" {
		t.Fatalf("sanitizeMetricName(empty) = %q, want fallback", got)
	}
}
