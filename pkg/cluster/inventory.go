package cluster

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/safety"
)

// Inventory lists scalable workloads with their requests and metadata
type Inventory struct {
	clientset kubernetes.Interface
	metrics   metricsv.Interface
	clusterID string
	logger    *zap.Logger
}

// NewInventory creates an inventory. metrics may be nil when metrics-server is not installed.
func NewInventory(clientset kubernetes.Interface, metrics metricsv.Interface, clusterID string, logger *zap.Logger) *Inventory {
	return &Inventory{
		clientset: clientset,
		metrics:   metrics,
		clusterID: clusterID,
		logger:    logging.OrNop(logger).Named("inventory"),
	}
}

// ListWorkloads returns Deployments and StatefulSets in namespace, or in every namespace when empty
func (i *Inventory) ListWorkloads(ctx context.Context, namespace string) ([]*models.Workload, error) {
	namespaces, err := i.namespaces(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var workloads []*models.Workload
	for _, ns := range namespaces {
		env := safety.ClassifyNamespace(ns.Name, ns.Labels)

		found, err := i.scanNamespace(ctx, ns.Name, env)
		if err != nil {
			i.logger.Warn("Error scanning namespace", zap.String("namespace", ns.Name), zap.Error(err))
			continue
		}
		workloads = append(workloads, found...)
	}

	i.logger.Info("Workload inventory complete",
		zap.Int("namespaces", len(namespaces)),
		zap.Int("workloads", len(workloads)))
	return workloads, nil
}

// GetWorkload returns a single workload by key
func (i *Inventory) GetWorkload(ctx context.Context, key string) (*models.Workload, error) {
	namespace, name, err := models.ParseWorkloadKey(key)
	if err != nil {
		return nil, err
	}
	workloads, err := i.ListWorkloads(ctx, namespace)
	if err != nil {
		return nil, err
	}
	for _, w := range workloads {
		if w.Name == name {
			return w, nil
		}
	}
	return nil, fmt.Errorf("workload %s not found", key)
}

func (i *Inventory) namespaces(ctx context.Context, namespace string) ([]corev1.Namespace, error) {
	if namespace != "" {
		ns, err := i.clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
		if err != nil {
			// Labels are optional; keep going with the name alone
			i.logger.Debug("Namespace lookup failed", zap.String("namespace", namespace), zap.Error(err))
			return []corev1.Namespace{{ObjectMeta: metav1.ObjectMeta{Name: namespace}}}, nil
		}
		return []corev1.Namespace{*ns}, nil
	}

	list, err := i.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return list.Items, nil
}

func (i *Inventory) scanNamespace(ctx context.Context, namespace string, env safety.Environment) ([]*models.Workload, error) {
	deployments, err := i.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	statefulSets, err := i.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list statefulsets: %w", err)
	}

	var workloads []*models.Workload
	for idx := range deployments.Items {
		d := &deployments.Items[idx]
		if excluded(d.Annotations) {
			continue
		}
		w := i.newWorkload(models.KindDeployment, d.ObjectMeta, d.Spec.Replicas, d.Spec.Template.Spec, env)
		i.attachUsage(ctx, w, d.Spec.Selector)
		workloads = append(workloads, w)
	}
	for idx := range statefulSets.Items {
		s := &statefulSets.Items[idx]
		if excluded(s.Annotations) {
			continue
		}
		w := i.newWorkload(models.KindStatefulSet, s.ObjectMeta, s.Spec.Replicas, s.Spec.Template.Spec, env)
		i.attachUsage(ctx, w, s.Spec.Selector)
		workloads = append(workloads, w)
	}

	return workloads, nil
}

func (i *Inventory) newWorkload(kind models.WorkloadKind, meta metav1.ObjectMeta, replicas *int32, pod corev1.PodSpec, env safety.Environment) *models.Workload {
	current := int32(1)
	if replicas != nil {
		current = *replicas
	}

	cpu, memory := podRequests(pod)

	w := &models.Workload{
		Kind:             kind,
		Namespace:        meta.Namespace,
		Name:             meta.Name,
		ClusterID:        i.clusterID,
		Environment:      string(env),
		CurrentReplicas:  current,
		BaselineReplicas: parseBaseline(meta.Annotations),
		MinReplicas:      parseMinReplicas(meta.Annotations),
		RequestedCPU:     cpu,
		RequestedMemory:  memory,
		Criticality:      parseCriticality(meta.Annotations),
		Dependencies:     parseDependencies(meta.Annotations),
	}
	if w.BaselineReplicas == 0 {
		w.BaselineReplicas = current
	}
	return w
}

// podRequests sums container requests for one pod: CPU in millicores, memory in bytes
func podRequests(pod corev1.PodSpec) (int64, int64) {
	var cpu, memory int64
	for _, c := range pod.Containers {
		if q, ok := c.Resources.Requests[corev1.ResourceCPU]; ok {
			cpu += q.MilliValue()
		}
		if q, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
			memory += q.Value()
		}
	}
	return cpu, memory
}

func (i *Inventory) attachUsage(ctx context.Context, w *models.Workload, selector *metav1.LabelSelector) {
	if i.metrics == nil || selector == nil || w.CurrentReplicas == 0 {
		return
	}
	usage, err := PodUsage(ctx, i.metrics, w.Namespace, selector)
	if err != nil {
		i.logger.Debug("Usage unavailable", zap.String("workload", w.Key()), zap.Error(err))
		return
	}
	w.UsageCPU = usage.CPU
	w.UsageMemory = usage.Memory
}

// deploymentReplicas and statefulSetReplicas read spec.replicas, defaulting to 1
func deploymentReplicas(d *appsv1.Deployment) int32 {
	if d.Spec.Replicas == nil {
		return 1
	}
	return *d.Spec.Replicas
}

func statefulSetReplicas(s *appsv1.StatefulSet) int32 {
	if s.Spec.Replicas == nil {
		return 1
	}
	return *s.Spec.Replicas
}
