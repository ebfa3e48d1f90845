package configsource

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"

	"github.com/srijanshukla18/scx-slo/api/v1alpha1"
	"github.com/srijanshukla18/scx-slo/internal/admission"
	"github.com/srijanshukla18/scx-slo/internal/observability"
	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

const (
	annotationBudgetMS           = "scx-slo/budget-ms"
	annotationImportance         = "scx-slo/importance"
	annotationPriorityClass      = "scx-slo/priority-class"
	annotationDataClassification = "scx-slo/data-classification"

	defaultBudgetMS   = 100
	defaultImportance = 50
)

// sloPolicyResource is the GroupVersionResource the SLOPolicy CRD
// (api/v1alpha1.SLOPolicy) is registered under. A cluster that wants
// this watch applied installs the matching CustomResourceDefinition;
// this package never generates or applies that CRD itself.
var sloPolicyResource = schema.GroupVersionResource{
	Group:    "scx-slo.dev",
	Version:  "v1alpha1",
	Resource: "slopolicies",
}

// K8sWatcher reflects SLO annotations on Pods scheduled to one node,
// and cluster-wide SLOPolicy CRD objects, into the engine's Config
// Store, gated by an admission Engine. It supersedes the original's
// cgroup-path resolution (which needed the kernel's name_to_handle_at
// to recover a cgroup ID from a Pod's cgroupfs path) with a pure
// function of the Pod's UID: PodCgroupID hashes the UID instead of
// resolving the filesystem, since Go has no portable equivalent to
// that syscall and the real cgroup-to-WID mapping is host-side policy
// this package doesn't own.
type K8sWatcher struct {
	nodeName string
	engine   *scxslo.Engine
	admit    *admission.Engine
	audit    *admission.AuditLog
	client   kubernetes.Interface
	dyn      dynamic.Interface
	log      *logrus.Entry

	mu        sync.Mutex
	namespace map[scxslo.WID]string // for namespace-scoped admission quotas
}

// NewK8sWatcherInCluster builds a watcher using the in-cluster service
// account config, for the node named by nodeName. It wires both the
// typed Pod client and a dynamic client for the unstructured SLOPolicy
// CRD watch, since no generated clientset exists for that CRD.
func NewK8sWatcherInCluster(nodeName string, engine *scxslo.Engine, admit *admission.Engine, audit *admission.AuditLog) (*K8sWatcher, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	dynClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	w := NewK8sWatcher(nodeName, clientset, engine, admit, audit)
	w.dyn = dynClient
	return w, nil
}

// NewK8sWatcher builds a watcher over an already-constructed typed
// client, for tests and non-in-cluster deployments. The SLOPolicy CRD
// watch is only started when a dynamic client is attached separately
// (NewK8sWatcherInCluster does this automatically); tests that only
// exercise the annotation path can leave it nil.
func NewK8sWatcher(nodeName string, client kubernetes.Interface, engine *scxslo.Engine, admit *admission.Engine, audit *admission.AuditLog) *K8sWatcher {
	return &K8sWatcher{
		nodeName:  nodeName,
		engine:    engine,
		admit:     admit,
		audit:     audit,
		client:    client,
		log:       logrus.WithField("component", "configsource.k8s"),
		namespace: make(map[scxslo.WID]string),
	}
}

// WithDynamicClient attaches a dynamic client to watch the SLOPolicy
// CRD, for tests that want to exercise that path without going
// through NewK8sWatcherInCluster.
func (w *K8sWatcher) WithDynamicClient(dyn dynamic.Interface) *K8sWatcher {
	w.dyn = dyn
	return w
}

// Run starts an informer over Pods on this node, and, if a dynamic
// client is attached, a second informer over cluster-wide SLOPolicy
// objects. It blocks until ctx is cancelled.
func (w *K8sWatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runPodInformer(ctx)
	}()

	if w.dyn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runSLOPolicyInformer(ctx)
		}()
	}

	wg.Wait()
	return nil
}

func (w *K8sWatcher) runPodInformer(ctx context.Context) {
	factoryOpts := func(opts *metav1.ListOptions) {
		opts.FieldSelector = "spec.nodeName=" + w.nodeName
	}

	lw := cache.NewFilteredListWatchFromClient(
		w.client.CoreV1().RESTClient(),
		"pods",
		"",
		factoryOpts,
	)

	_, controller := cache.NewInformer(lw, &corev1.Pod{}, 0, cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if pod, ok := obj.(*corev1.Pod); ok {
				w.applyPod(pod)
			}
		},
		UpdateFunc: func(_, newObj interface{}) {
			if pod, ok := newObj.(*corev1.Pod); ok {
				w.applyPod(pod)
			}
		},
	})

	w.log.WithField("node", w.nodeName).Info("starting k8s SLO annotation watcher")
	controller.Run(ctx.Done())
}

// runSLOPolicyInformer watches SLOPolicy objects cluster-wide via the
// dynamic client, since no generated typed clientset exists for this
// CRD. It mirrors runPodInformer's cache.NewInformer shape, just
// against unstructured.Unstructured instead of a typed object.
func (w *K8sWatcher) runSLOPolicyInformer(ctx context.Context) {
	res := w.dyn.Resource(sloPolicyResource)

	lw := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return res.Namespace(metav1.NamespaceAll).List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			return res.Namespace(metav1.NamespaceAll).Watch(ctx, options)
		},
	}

	_, controller := cache.NewInformer(lw, &unstructured.Unstructured{}, 0, cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if u, ok := obj.(*unstructured.Unstructured); ok {
				w.applySLOPolicy(u)
			}
		},
		UpdateFunc: func(_, newObj interface{}) {
			if u, ok := newObj.(*unstructured.Unstructured); ok {
				w.applySLOPolicy(u)
			}
		},
	})

	w.log.Info("starting k8s SLOPolicy CRD watcher")
	controller.Run(ctx.Done())
}

func (w *K8sWatcher) applyPod(pod *corev1.Pod) {
	ctx, span := observability.StartSpan(context.Background(), "configsource.k8s.apply_pod",
		attribute.String("pod.name", pod.Name),
		attribute.String("pod.namespace", pod.Namespace),
	)
	defer span.End()

	budgetStr, hasBudget := pod.Annotations[annotationBudgetMS]
	importStr, hasImportance := pod.Annotations[annotationImportance]
	if !hasBudget && !hasImportance {
		return
	}

	budgetMS, err := strconv.ParseUint(budgetStr, 10, 64)
	if err != nil || budgetMS == 0 {
		budgetMS = defaultBudgetMS
	}
	importance, err := strconv.ParseUint(importStr, 10, 32)
	if err != nil || importance == 0 {
		importance = defaultImportance
	}

	wid := scxslo.WID(PodCgroupID(pod.UID))
	w.apply(ctx, applyRequest{
		wid:                 wid,
		namespace:           pod.Namespace,
		workloadName:        pod.Name,
		priorityClass:       pod.Annotations[annotationPriorityClass],
		dataClassification:  pod.Annotations[annotationDataClassification],
		budgetNS:            budgetMS * 1_000_000,
		importance:          uint32(importance),
		sourceFields:        logrus.Fields{"pod": pod.Name},
	})
}

// applySLOPolicy reconciles one SLOPolicy object's WorkloadBudget
// entries into the engine's Config Store.
func (w *K8sWatcher) applySLOPolicy(obj *unstructured.Unstructured) {
	var policy v1alpha1.SLOPolicy
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &policy); err != nil {
		w.log.WithError(err).Warn("decode SLOPolicy failed")
		return
	}

	ctx, span := observability.StartSpan(context.Background(), "configsource.k8s.apply_slo_policy",
		attribute.String("policy.name", policy.Metadata.Name),
	)
	defer span.End()

	namespace := policy.Spec.NamespaceSelector
	if namespace == "" {
		namespace = policy.Metadata.Namespace
	}

	applied := 0
	for _, wb := range policy.Spec.Workloads {
		wid := scxslo.WID(SLOPolicyWorkloadID(namespace, policy.Metadata.Name, wb.WorkloadName))
		budgetMS := wb.BudgetMS
		if budgetMS == 0 {
			budgetMS = defaultBudgetMS
		}
		importance := wb.Importance
		if importance == 0 {
			importance = defaultImportance
		}
		ok := w.apply(ctx, applyRequest{
			wid:                wid,
			namespace:          namespace,
			workloadName:       wb.WorkloadName,
			priorityClass:      wb.PriorityClass,
			dataClassification: wb.DataClassification,
			budgetNS:           budgetMS * 1_000_000,
			importance:         importance,
			sourceFields:       logrus.Fields{"policy": policy.Metadata.Name},
		})
		if ok {
			applied++
		}
	}

	w.log.WithFields(logrus.Fields{
		"policy":  policy.Metadata.Name,
		"applied": applied,
	}).Info("reconciled SLOPolicy")
}

// applyRequest is the common shape both the Pod-annotation path and
// the SLOPolicy path reduce to before admission and upsert.
type applyRequest struct {
	wid                 scxslo.WID
	namespace           string
	workloadName        string
	priorityClass       string
	dataClassification  string
	budgetNS            uint64
	importance          uint32
	sourceFields        logrus.Fields
}

// apply runs req through the admission gate and, if allowed, upserts
// it into the engine's Config Store, recording it under req.wid for
// namespace-quota accounting. It is shared by applyPod and
// applySLOPolicy so both sources are gated and counted identically.
func (w *K8sWatcher) apply(_ context.Context, req applyRequest) bool {
	w.mu.Lock()
	namespaceCount := 0
	for existing, ns := range w.namespace {
		if ns == req.namespace && existing != req.wid {
			namespaceCount++
		}
	}
	w.mu.Unlock()

	decision := w.admit.Evaluate(admission.UpsertInput{
		Namespace:           req.namespace,
		WorkloadName:        req.workloadName,
		PriorityClass:       req.priorityClass,
		DataClassification:  req.dataClassification,
		Importance:          req.importance,
		BudgetNS:            req.budgetNS,
		NamespaceCount:      namespaceCount,
	})
	if w.audit != nil {
		w.audit.Append(req.namespace, req.workloadName, decision)
	}
	if !decision.Allowed {
		fields := logrus.Fields{"namespace": req.namespace, "reason_code": decision.ReasonCode}
		for k, v := range req.sourceFields {
			fields[k] = v
		}
		w.log.WithFields(fields).Warn("admission denied workload config")
		return false
	}

	if cerr := w.engine.UpsertConfig(req.wid, scxslo.SloCfg{BudgetNS: req.budgetNS, Importance: req.importance}); cerr != scxslo.ErrNone {
		fields := logrus.Fields{"workload": req.wid}
		for k, v := range req.sourceFields {
			fields[k] = v
		}
		w.log.WithError(cerr).WithFields(fields).Warn("upsert config rejected by engine")
		return false
	}

	w.mu.Lock()
	w.namespace[req.wid] = req.namespace
	w.mu.Unlock()

	fields := logrus.Fields{
		"workload":   req.wid,
		"budget_ns":  req.budgetNS,
		"importance": req.importance,
	}
	for k, v := range req.sourceFields {
		fields[k] = v
	}
	w.log.WithFields(fields).Info("updated SLO config")
	return true
}

// PodCgroupID derives a stable workload identifier from a Pod UID. It
// does not resolve the kernel cgroup ID the original tool read via
// name_to_handle_at — that 64-bit ID space belongs to the host kernel,
// not to this watcher — it only needs a key stable across annotation
// updates for the same pod.
func PodCgroupID(uid types.UID) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(uid))
	return h.Sum64()
}

// SLOPolicyWorkloadID derives a stable workload identifier for one
// WorkloadBudget entry of an SLOPolicy, scoped by namespace and policy
// name so the same workload name in two policies (or two namespaces)
// never collides.
func SLOPolicyWorkloadID(namespace, policyName, workloadName string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(policyName))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(workloadName))
	return h.Sum64()
}
