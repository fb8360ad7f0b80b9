package cluster

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Usage is the summed current usage of a workload's pods
type Usage struct {
	CPU    int64 // millicores
	Memory int64 // bytes
	Pods   int
}

// PodUsage sums metrics-server usage for the pods matching selector
func PodUsage(ctx context.Context, client metricsv.Interface, namespace string, selector *metav1.LabelSelector) (*Usage, error) {
	sel, err := metav1.LabelSelectorAsSelector(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}

	list, err := client.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{LabelSelector: sel.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod metrics: %w", err)
	}

	usage := &Usage{Pods: len(list.Items)}
	for _, pm := range list.Items {
		for _, c := range pm.Containers {
			usage.CPU += c.Usage.Cpu().MilliValue()
			usage.Memory += c.Usage.Memory().Value()
		}
	}
	return usage, nil
}
