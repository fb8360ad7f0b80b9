package pricing

import (
	"context"

	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Hourly on-demand list prices per vCPU and per GiB
const (
	defaultCPUHourly    = 0.0315
	defaultMemoryHourly = 0.0041
)

// DefaultProvider provides fallback pricing for on-prem or unknown clouds
type DefaultProvider struct {
	cpuCost    float64
	memoryCost float64
	clock      clock.PassiveClock
}

func NewDefaultProvider(cpuCost, memoryCost float64) *DefaultProvider {
	if cpuCost == 0 {
		cpuCost = defaultCPUHourly
	}
	if memoryCost == 0 {
		memoryCost = defaultMemoryHourly
	}
	return &DefaultProvider{
		cpuCost:    cpuCost,
		memoryCost: memoryCost,
		clock:      clock.RealClock{},
	}
}

func (d *DefaultProvider) Name() string {
	return "default"
}

func (d *DefaultProvider) Region() string {
	return "unknown"
}

func (d *DefaultProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	return &models.CostInfo{
		Provider:            "default",
		Region:              "unknown",
		CPUCostPerCoreHour:  d.cpuCost,
		MemoryCostPerGBHour: d.memoryCost,
		Currency:            "USD",
		LastUpdated:         d.clock.Now(),
	}, nil
}
