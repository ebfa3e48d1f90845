package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MetricPoint is one named, unlabeled counter value in a Snapshot.
// Engine counters have no per-request dimensions to label by, so this
// Registry only ever carries flat name->value pairs, unlike the
// label-keyed metric store this package started from.
type MetricPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Snapshot is the ambient JSON rendering of every counter currently
// held in a Registry.
type Snapshot struct {
	Counters []MetricPoint `json:"counters"`
}

type metricEntry struct {
	name  string
	value float64
}

// Registry is the in-memory counter store behind the ambient /v1/metrics
// snapshot and the Prometheus text exposition at /v1/metrics/prometheus.
// It is fed exclusively by PublishEngineCounters, which overwrites
// counters wholesale from the engine's own cumulative CounterSnapshot
// rather than incrementing deltas.
type Registry struct {
	mu       sync.Mutex
	counters map[string]metricEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]metricEntry)}
}

// Default is the process-wide Registry the HTTP API renders from.
var Default = NewRegistry()

// Snapshot returns every counter currently held, sorted by name.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Snapshot{Counters: make([]MetricPoint, 0, len(r.counters))}
	for _, e := range r.counters {
		out.Counters = append(out.Counters, MetricPoint{Name: e.name, Value: e.value})
	}
	sort.Slice(out.Counters, func(i, j int) bool { return out.Counters[i].Name < out.Counters[j].Name })
	return out
}

// Reset clears every counter, for test setup.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]metricEntry)
}

// RenderPrometheus renders the current Snapshot in Prometheus text
// exposition format.
func (r *Registry) RenderPrometheus() string {
	s := r.Snapshot()
	lines := make([]string, 0, len(s.Counters))
	for _, p := range s.Counters {
		lines = append(lines, sanitizeMetricName(p.Name)+" "+strconv.FormatFloat(p.Value, 'f', -1, 64))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func sanitizeMetricName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "scxslo_metric"
	}
	out := make([]rune, 0, len(name))
	for i, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || (r >= '0' && r <= '9' && i > 0)
		if valid {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
