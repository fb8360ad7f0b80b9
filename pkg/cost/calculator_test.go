package cost

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/pricing"
)

func workload(ns, name string, replicas int32) *models.Workload {
	return &models.Workload{
		Kind:            models.KindDeployment,
		Namespace:       ns,
		Name:            name,
		CurrentReplicas: replicas,
		RequestedCPU:    500,
		RequestedMemory: 1024 * 1024 * 1024,
	}
}

func TestMonthlyCost(t *testing.T) {
	info := &models.CostInfo{CPUCostPerCoreHour: 0.04, MemoryCostPerGBHour: 0.005}

	// 2 * (0.5*0.04 + 1*0.005) * 730 = 36.5
	got := MonthlyCost(2, 500, 1024*1024*1024, info)
	assert.InDelta(t, 36.5, got, 1e-9)

	assert.Equal(t, 0.0, MonthlyCost(0, 500, 1024*1024*1024, info))
}

func TestEstimateScaleToZeroSavesEverything(t *testing.T) {
	calc := NewCalculator(pricing.NewDefaultProvider(0, 0))

	estimate, err := calc.Estimate(context.Background(), workload("shop", "api", 3), 0)
	require.NoError(t, err)

	assert.Greater(t, estimate.MonthlyCostBefore, 0.0)
	assert.Equal(t, 0.0, estimate.MonthlyCostAfter)
	assert.Equal(t, estimate.MonthlyCostBefore, estimate.Savings)
	assert.Equal(t, int32(3), estimate.ReplicasBefore)
	assert.Equal(t, "default", estimate.Provider)
	assert.Equal(t, "USD", estimate.Currency)
}

func TestEstimateRightsizing(t *testing.T) {
	calc := NewCalculator(pricing.NewDefaultProvider(0.04, 0.005))

	estimate, err := calc.Estimate(context.Background(), workload("shop", "api", 4), 1)
	require.NoError(t, err)

	perReplica := MonthlyCost(1, 500, 1024*1024*1024, &models.CostInfo{CPUCostPerCoreHour: 0.04, MemoryCostPerGBHour: 0.005})
	assert.InDelta(t, 4*perReplica, estimate.MonthlyCostBefore, 1e-9)
	assert.InDelta(t, perReplica, estimate.MonthlyCostAfter, 1e-9)
	assert.InDelta(t, 3*perReplica, estimate.Savings, 1e-9)
}

func TestEstimateAlreadyAtZeroUsesBaseline(t *testing.T) {
	calc := NewCalculator(pricing.NewDefaultProvider(0, 0))
	w := workload("shop", "api", 0)
	w.BaselineReplicas = 2

	estimate, err := calc.Estimate(context.Background(), w, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), estimate.ReplicasBefore)
	assert.Equal(t, estimate.MonthlyCostBefore, estimate.Savings)
}

func TestEstimateErrors(t *testing.T) {
	calc := NewCalculator(pricing.NewDefaultProvider(0, 0))
	_, err := calc.Estimate(context.Background(), nil, 0)
	assert.Error(t, err)
	_, err = calc.Estimate(context.Background(), workload("a", "b", 1), -1)
	assert.Error(t, err)

	failing := NewCalculator(failingProvider{})
	_, err = failing.Estimate(context.Background(), workload("a", "b", 1), 0)
	assert.ErrorIs(t, err, errPricingDown)
}

func TestAggregate(t *testing.T) {
	estimates := []*models.CostEstimate{
		{Workload: "shop/api", Namespace: "shop", MonthlyCostBefore: 30, Savings: 30},
		{Workload: "shop/worker", Namespace: "shop", MonthlyCostBefore: 20, MonthlyCostAfter: 10, Savings: 10},
		{Workload: "ml/train", Namespace: "ml", MonthlyCostBefore: 100, Savings: 100},
		nil,
	}

	summary := Aggregate(estimates)

	want := &models.CostSummary{
		Namespaces: map[string]*models.CostTotals{
			"shop": {Workloads: 2, MonthlyCostBefore: 50, MonthlyCostAfter: 10, Savings: 40},
			"ml":   {Workloads: 1, MonthlyCostBefore: 100, Savings: 100},
		},
		Cluster: models.CostTotals{Workloads: 3, MonthlyCostBefore: 150, MonthlyCostAfter: 10, Savings: 140},
	}
	if diff := cmp.Diff(want, summary, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"ml", "shop"}, SortedNamespaces(summary))
}

var errPricingDown = errors.New("pricing unavailable")

type failingProvider struct{}

func (failingProvider) GetCostInfo(context.Context, string, string) (*models.CostInfo, error) {
	return nil, errPricingDown
}
func (failingProvider) Region() string { return "" }
func (failingProvider) Name() string   { return "failing" }
