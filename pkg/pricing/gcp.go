package pricing

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// GCPProvider implements GKE pricing
type GCPProvider struct {
	region string
	cache  *PriceCache
	clock  clock.PassiveClock
}

func NewGCPProvider(region string) *GCPProvider {
	return &GCPProvider{
		region: region,
		cache:  NewPriceCache(24*time.Hour, nil),
		clock:  clock.RealClock{},
	}
}

func (g *GCPProvider) Name() string {
	return "gcp"
}

func (g *GCPProvider) Region() string {
	return g.region
}

func (g *GCPProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	if region == "" {
		region = g.region
	}
	cacheKey := fmt.Sprintf("gcp-%s-%s", region, nodeType)
	if cached := g.cache.Get(cacheKey); cached != nil {
		return cached, nil
	}

	// e2-standard custom machine list prices
	info := &models.CostInfo{
		Provider:            "gcp",
		Region:              region,
		CPUCostPerCoreHour:  0.0425,
		MemoryCostPerGBHour: 0.0058,
		Currency:            "USD",
		LastUpdated:         g.clock.Now(),
	}
	g.cache.Set(cacheKey, info)
	return info, nil
}
