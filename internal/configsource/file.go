// Package configsource feeds workload configuration into the engine's
// Config Store from outside the hot scheduling path: a polled YAML
// file for static deployments, and a Kubernetes Pod-annotation watcher
// for clustered ones. Neither source touches the engine's Config Store
// directly — both go through an admission Engine first.
package configsource

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srijanshukla18/scx-slo/internal/admission"
	"github.com/srijanshukla18/scx-slo/internal/observability"
	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

// FileEntry is one workload's configuration as written in the YAML
// config file, identified by its workload_id; entries without one are
// skipped.
type FileEntry struct {
	Namespace          string `yaml:"namespace"`
	WorkloadName       string `yaml:"workload_name"`
	WorkloadID         uint64 `yaml:"workload_id"`
	BudgetMS           uint64 `yaml:"budget_ms"`
	Importance         uint32 `yaml:"importance"`
	PriorityClass      string `yaml:"priority_class"`
	DataClassification string `yaml:"data_classification"`
}

// FileConfig is the top-level shape of the on-disk YAML file.
type FileConfig struct {
	Workloads []FileEntry `yaml:"workloads"`
}

// FileWatcher polls a YAML file on a fixed interval and upserts its
// entries into the engine's Config Store, gated by an admission
// Engine. It replaces the original line-oriented "cgroup_path
// budget_ms importance" config file with a structured format, since
// workloads are identified here by WID rather than a resolved cgroup
// path.
type FileWatcher struct {
	path     string
	interval time.Duration
	engine   *scxslo.Engine
	admit    *admission.Engine
	audit    *admission.AuditLog
	log      *logrus.Entry

	mu        sync.Mutex
	lastMod   time.Time
	namespace map[scxslo.WID]string // for namespace-scoped admission quotas
}

// NewFileWatcher builds a watcher for the YAML file at path, polling
// every interval. admit and audit may be nil-free (use
// admission.NewAllowAll() and admission.NewAuditLog() respectively) if
// the caller wants no gatekeeping.
func NewFileWatcher(path string, interval time.Duration, engine *scxslo.Engine, admit *admission.Engine, audit *admission.AuditLog) *FileWatcher {
	return &FileWatcher{
		path:      path,
		interval:  interval,
		engine:    engine,
		admit:     admit,
		audit:     audit,
		log:       logrus.WithField("component", "configsource.file"),
		namespace: make(map[scxslo.WID]string),
	}
}

// Run polls until stop is closed. It is meant to be
// invoked in its own goroutine.
func (w *FileWatcher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *FileWatcher) poll() {
	_, span := observability.StartSpan(context.Background(), "configsource.file.poll")
	defer span.End()

	info, err := os.Stat(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.WithError(err).Warn("stat config file failed")
		}
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMod)
	w.mu.Unlock()
	if unchanged {
		return
	}

	b, err := os.ReadFile(w.path)
	if err != nil {
		w.log.WithError(err).Warn("read config file failed")
		return
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		w.log.WithError(err).Warn("parse config file failed")
		return
	}

	w.mu.Lock()
	w.lastMod = info.ModTime()
	w.mu.Unlock()

	loaded := 0
	for _, entry := range cfg.Workloads {
		if w.applyEntry(entry) {
			loaded++
		}
	}
	w.log.WithField("entries", loaded).Info("loaded workload configuration")
}

func (w *FileWatcher) applyEntry(entry FileEntry) bool {
	if entry.WorkloadID == 0 {
		w.log.WithField("workload_name", entry.WorkloadName).Warn("config entry missing workload_id, skipping")
		return false
	}

	wid := scxslo.WID(entry.WorkloadID)
	budgetNS := entry.BudgetMS * uint64(time.Millisecond)

	w.mu.Lock()
	namespaceCount := 0
	for existing, ns := range w.namespace {
		if ns == entry.Namespace && existing != wid {
			namespaceCount++
		}
	}
	w.mu.Unlock()

	decision := w.admit.Evaluate(admission.UpsertInput{
		Namespace:           entry.Namespace,
		WorkloadName:        entry.WorkloadName,
		PriorityClass:       entry.PriorityClass,
		DataClassification:  entry.DataClassification,
		Importance:          entry.Importance,
		BudgetNS:            budgetNS,
		NamespaceCount:      namespaceCount,
	})
	if w.audit != nil {
		w.audit.Append(entry.Namespace, entry.WorkloadName, decision)
	}
	if !decision.Allowed {
		w.log.WithFields(logrus.Fields{
			"namespace":   entry.Namespace,
			"workload":    entry.WorkloadName,
			"reason_code": decision.ReasonCode,
		}).Warn("admission denied config entry")
		return false
	}

	if cerr := w.engine.UpsertConfig(wid, scxslo.SloCfg{BudgetNS: budgetNS, Importance: entry.Importance}); cerr != scxslo.ErrNone {
		w.log.WithError(cerr).WithField("workload", entry.WorkloadName).Warn("upsert config rejected by engine")
		return false
	}

	w.mu.Lock()
	w.namespace[wid] = entry.Namespace
	w.mu.Unlock()
	return true
}

// WriteExample writes a starter YAML config to path, analogous to the
// original tool's create_example_config.
func WriteExample(path string) error {
	example := FileConfig{
		Workloads: []FileEntry{
			{Namespace: "critical", WorkloadName: "payment-api", WorkloadID: 1, BudgetMS: 50, Importance: 90},
			{Namespace: "standard", WorkloadName: "user-service", WorkloadID: 2, BudgetMS: 100, Importance: 70},
			{Namespace: "batch", WorkloadName: "analytics", WorkloadID: 3, BudgetMS: 500, Importance: 20},
		},
	}
	b, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
