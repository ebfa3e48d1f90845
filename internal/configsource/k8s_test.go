package configsource

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"

	"github.com/srijanshukla18/scx-slo/api/v1alpha1"
	"github.com/srijanshukla18/scx-slo/internal/admission"
	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

func TestPodCgroupIDStableAcrossCalls(t *testing.T) {
	uid := types.UID("abc-123")
	if PodCgroupID(uid) != PodCgroupID(uid) {
		t.Fatalf("expected PodCgroupID to be deterministic")
	}
	if PodCgroupID(uid) == PodCgroupID(types.UID("def-456")) {
		t.Fatalf("expected distinct UIDs to hash to distinct workload IDs (ignoring astronomically unlikely collision)")
	}
}

func TestApplyPodUpsertsConfigFromAnnotations(t *testing.T) {
	engine := scxslo.NewEngine(scxslo.Options{})
	w := NewK8sWatcher("node-1", nil, engine, admission.NewAllowAll(), admission.NewAuditLog())

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "payment-api-7d8f",
			Namespace: "critical",
			UID:       types.UID("pod-uid-1"),
			Annotations: map[string]string{
				annotationBudgetMS:   "50",
				annotationImportance: "90",
			},
		},
	}

	w.applyPod(pod)

	wid := scxslo.WID(PodCgroupID(pod.UID))
	cfg, ok := engine.GetConfig(wid)
	if !ok {
		t.Fatalf("expected config to be upserted for pod")
	}
	if cfg.BudgetNS != 50_000_000 || cfg.Importance != 90 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestApplyPodIgnoresPodsWithoutAnnotations(t *testing.T) {
	engine := scxslo.NewEngine(scxslo.Options{})
	w := NewK8sWatcher("node-1", nil, engine, admission.NewAllowAll(), admission.NewAuditLog())

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "no-slo",
			Namespace: "default",
			UID:       types.UID("pod-uid-2"),
		},
	}
	w.applyPod(pod)

	wid := scxslo.WID(PodCgroupID(pod.UID))
	if _, ok := engine.GetConfig(wid); ok {
		t.Fatalf("expected no config for pod without SLO annotations")
	}
}

func TestApplyPodRepeatedUpdatesDoNotInflateNamespaceCount(t *testing.T) {
	admit := admission.NewFromConfig(admission.Config{
		DefaultAction: "allow",
		NamespaceQuotas: map[string]admission.NamespaceQuota{
			"critical": {MaxWorkloads: 1},
		},
	})
	engine := scxslo.NewEngine(scxslo.Options{})
	w := NewK8sWatcher("node-1", nil, engine, admit, admission.NewAuditLog())

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "payment-api-7d8f",
			Namespace: "critical",
			UID:       types.UID("pod-uid-1"),
			Annotations: map[string]string{
				annotationBudgetMS:   "50",
				annotationImportance: "90",
			},
		},
	}

	// UpdateFunc re-fires applyPod for the same Pod on every informer
	// resync; a monotonic per-namespace counter would inflate past the
	// quota on the Pod's own repeated updates.
	for i := 0; i < 5; i++ {
		w.applyPod(pod)
	}

	wid := scxslo.WID(PodCgroupID(pod.UID))
	if _, ok := engine.GetConfig(wid); !ok {
		t.Fatalf("expected config to survive repeated updates of the same pod under a MaxWorkloads: 1 quota")
	}
}

func TestApplyPodDeniedByAdmissionIsNotApplied(t *testing.T) {
	admit := admission.NewFromConfig(admission.Config{
		DefaultAction: "allow",
		NamespaceQuotas: map[string]admission.NamespaceQuota{
			"batch": {MaxImportance: 10},
		},
	})
	engine := scxslo.NewEngine(scxslo.Options{})
	audit := admission.NewAuditLog()
	w := NewK8sWatcher("node-1", nil, engine, admit, audit)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "analytics",
			Namespace: "batch",
			UID:       types.UID("pod-uid-3"),
			Annotations: map[string]string{
				annotationBudgetMS:   "500",
				annotationImportance: "99",
			},
		},
	}
	w.applyPod(pod)

	wid := scxslo.WID(PodCgroupID(pod.UID))
	if _, ok := engine.GetConfig(wid); ok {
		t.Fatalf("expected denied pod to not be configured")
	}
	events := audit.List(admission.AuditQuery{Namespace: "batch"})
	if len(events) != 1 || events[0].Allowed {
		t.Fatalf("expected denied audit event, got %+v", events)
	}
}

func TestApplyPodReadsPriorityClassAndDataClassificationAnnotations(t *testing.T) {
	admit := admission.NewFromConfig(admission.Config{
		DefaultAction: "allow",
		Rules: []admission.Rule{
			{
				Name:   "deny-restricted",
				Effect: "deny",
				Reason: "restricted_data_requires_manual_review",
				Match:  admission.RuleMatch{DataClassification: "restricted"},
			},
		},
	})
	engine := scxslo.NewEngine(scxslo.Options{})
	audit := admission.NewAuditLog()
	w := NewK8sWatcher("node-1", nil, engine, admit, audit)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "ledger",
			Namespace: "payments",
			UID:       types.UID("pod-uid-4"),
			Annotations: map[string]string{
				annotationBudgetMS:           "50",
				annotationImportance:         "90",
				annotationPriorityClass:      "critical",
				annotationDataClassification: "restricted",
			},
		},
	}
	w.applyPod(pod)

	wid := scxslo.WID(PodCgroupID(pod.UID))
	if _, ok := engine.GetConfig(wid); ok {
		t.Fatalf("expected pod with restricted data classification to be denied")
	}
}

func TestApplySLOPolicyUpsertsConfigForEachWorkload(t *testing.T) {
	engine := scxslo.NewEngine(scxslo.Options{})
	w := NewK8sWatcher("node-1", nil, engine, admission.NewAllowAll(), admission.NewAuditLog())

	policy := &v1alpha1.SLOPolicy{
		APIVersion: "scx-slo.dev/v1alpha1",
		Kind:       "SLOPolicy",
		Metadata:   v1alpha1.ObjectMeta{Name: "critical-budgets", Namespace: "critical"},
		Spec: v1alpha1.SLOPolicySpec{
			Workloads: []v1alpha1.WorkloadBudget{
				{WorkloadName: "payment-api", BudgetMS: 50, Importance: 90},
				{WorkloadName: "fraud-check", BudgetMS: 200, Importance: 60},
			},
		},
	}
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(policy)
	if err != nil {
		t.Fatalf("build unstructured policy: %v", err)
	}
	w.applySLOPolicy(&unstructured.Unstructured{Object: obj})

	wid := scxslo.WID(SLOPolicyWorkloadID("critical", "critical-budgets", "payment-api"))
	cfg, ok := engine.GetConfig(wid)
	if !ok {
		t.Fatalf("expected config to be upserted for policy workload")
	}
	if cfg.BudgetNS != 50_000_000 || cfg.Importance != 90 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	secondWID := scxslo.WID(SLOPolicyWorkloadID("critical", "critical-budgets", "fraud-check"))
	if _, ok := engine.GetConfig(secondWID); !ok {
		t.Fatalf("expected config to be upserted for second policy workload")
	}
}

func TestApplySLOPolicyDeniedByAdmissionIsNotApplied(t *testing.T) {
	admit := admission.NewFromConfig(admission.Config{
		DefaultAction: "allow",
		NamespaceQuotas: map[string]admission.NamespaceQuota{
			"batch": {MaxImportance: 10},
		},
	})
	engine := scxslo.NewEngine(scxslo.Options{})
	w := NewK8sWatcher("node-1", nil, engine, admit, admission.NewAuditLog())

	policy := &v1alpha1.SLOPolicy{
		Metadata: v1alpha1.ObjectMeta{Name: "batch-budgets", Namespace: "batch"},
		Spec: v1alpha1.SLOPolicySpec{
			Workloads: []v1alpha1.WorkloadBudget{
				{WorkloadName: "analytics", BudgetMS: 500, Importance: 99},
			},
		},
	}
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(policy)
	if err != nil {
		t.Fatalf("build unstructured policy: %v", err)
	}
	w.applySLOPolicy(&unstructured.Unstructured{Object: obj})

	wid := scxslo.WID(SLOPolicyWorkloadID("batch", "batch-budgets", "analytics"))
	if _, ok := engine.GetConfig(wid); ok {
		t.Fatalf("expected denied policy workload to not be configured")
	}
}
