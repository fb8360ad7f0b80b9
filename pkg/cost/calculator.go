// Package cost projects monthly workload cost before and after a replica change.
package cost

import (
	"context"
	"fmt"
	"sort"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/pricing"
)

// HoursPerMonth is the billing month used for projections
const HoursPerMonth = 730.0

const bytesPerGiB = 1024.0 * 1024.0 * 1024.0

// Calculator computes monthly costs from per-pod requests and provider prices
type Calculator struct {
	provider pricing.Provider
}

// NewCalculator creates a calculator backed by a pricing provider
func NewCalculator(provider pricing.Provider) *Calculator {
	return &Calculator{provider: provider}
}

// Provider returns the pricing provider
func (c *Calculator) Provider() pricing.Provider { return c.provider }

// MonthlyCost = replicas * (cores*cpu_price + GiB*memory_price) * 730
func MonthlyCost(replicas int32, cpuMillicores, memoryBytes int64, info *models.CostInfo) float64 {
	if replicas <= 0 {
		return 0
	}
	cores := float64(cpuMillicores) / 1000.0
	memoryGiB := float64(memoryBytes) / bytesPerGiB
	perPodHourly := cores*info.CPUCostPerCoreHour + memoryGiB*info.MemoryCostPerGBHour
	return float64(replicas) * perPodHourly * HoursPerMonth
}

// Estimate projects cost at the current replica count and at targetReplicas
func (c *Calculator) Estimate(ctx context.Context, w *models.Workload, targetReplicas int32) (*models.CostEstimate, error) {
	if w == nil {
		return nil, fmt.Errorf("workload is required")
	}
	if targetReplicas < 0 {
		return nil, fmt.Errorf("target replicas cannot be negative: %d", targetReplicas)
	}

	info, err := c.provider.GetCostInfo(ctx, c.provider.Region(), "")
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing from %s: %w", c.provider.Name(), err)
	}

	before := MonthlyCost(w.RestoreReplicas(), w.RequestedCPU, w.RequestedMemory, info)
	after := MonthlyCost(targetReplicas, w.RequestedCPU, w.RequestedMemory, info)
	if targetReplicas == 0 {
		after = 0
	}

	return &models.CostEstimate{
		Workload:          w.Key(),
		Namespace:         w.Namespace,
		ReplicasBefore:    w.RestoreReplicas(),
		ReplicasAfter:     targetReplicas,
		MonthlyCostBefore: before,
		MonthlyCostAfter:  after,
		Savings:           before - after,
		Currency:          info.Currency,
		Provider:          info.Provider,
	}, nil
}

// Aggregate sums estimates per namespace and for the cluster
func Aggregate(estimates []*models.CostEstimate) *models.CostSummary {
	summary := &models.CostSummary{Namespaces: make(map[string]*models.CostTotals)}
	for _, e := range estimates {
		if e == nil {
			continue
		}
		ns := summary.Namespaces[e.Namespace]
		if ns == nil {
			ns = &models.CostTotals{}
			summary.Namespaces[e.Namespace] = ns
		}
		for _, totals := range []*models.CostTotals{ns, &summary.Cluster} {
			totals.Workloads++
			totals.MonthlyCostBefore += e.MonthlyCostBefore
			totals.MonthlyCostAfter += e.MonthlyCostAfter
			totals.Savings += e.Savings
		}
	}
	return summary
}

// SortedNamespaces returns the summary's namespaces by descending savings
func SortedNamespaces(summary *models.CostSummary) []string {
	names := make([]string, 0, len(summary.Namespaces))
	for name := range summary.Namespaces {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := summary.Namespaces[names[i]], summary.Namespaces[names[j]]
		if a.Savings != b.Savings {
			return a.Savings > b.Savings
		}
		return names[i] < names[j]
	})
	return names
}
