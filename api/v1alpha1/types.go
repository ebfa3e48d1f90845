package v1alpha1

import "time"

type ObjectMeta struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// SLOPolicy is the CRD shape a cluster operator applies to declare
// per-workload scheduling budgets, as an alternative to annotating
// Pods directly. internal/configsource/k8s.go watches both.
type SLOPolicy struct {
	APIVersion string          `json:"apiVersion"`
	Kind       string          `json:"kind"`
	Metadata   ObjectMeta      `json:"metadata"`
	Spec       SLOPolicySpec   `json:"spec"`
	Status     SLOPolicyStatus `json:"status,omitempty"`
}

type SLOPolicySpec struct {
	// NamespaceSelector names the namespace this policy's Workloads
	// entries are admitted and keyed under; empty falls back to the
	// policy's own metadata namespace.
	NamespaceSelector string           `json:"namespaceSelector,omitempty"`
	Workloads         []WorkloadBudget `json:"workloads"`
}

// WorkloadBudget names one workload's latency budget and importance.
// internal/configsource/k8s.go keys it by namespace, policy name and
// WorkloadName; LabelSelector is carried but not matched against Pods.
type WorkloadBudget struct {
	WorkloadName       string            `json:"workloadName"`
	LabelSelector      map[string]string `json:"labelSelector,omitempty"`
	BudgetMS           uint64            `json:"budgetMs"`
	Importance         uint32            `json:"importance"`
	PriorityClass      string            `json:"priorityClass,omitempty"`
	DataClassification string            `json:"dataClassification,omitempty"`
}

// SLOPolicyStatus reports the last time a policy's entries were
// successfully reconciled into engine configuration.
type SLOPolicyStatus struct {
	ObservedGeneration int64     `json:"observedGeneration,omitempty"`
	AppliedWorkloads   int       `json:"appliedWorkloads,omitempty"`
	LastAppliedAt      time.Time `json:"lastAppliedAt,omitempty"`
	Message            string    `json:"message,omitempty"`
}
