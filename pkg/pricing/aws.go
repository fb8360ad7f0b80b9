package pricing

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// AWSProvider implements AWS EKS pricing
type AWSProvider struct {
	region string
	cache  *PriceCache
	clock  clock.PassiveClock
}

func NewAWSProvider(region string) *AWSProvider {
	return &AWSProvider{
		region: region,
		cache:  NewPriceCache(24*time.Hour, nil),
		clock:  clock.RealClock{},
	}
}

func (a *AWSProvider) Name() string {
	return "aws"
}

func (a *AWSProvider) Region() string {
	return a.region
}

func (a *AWSProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	if region == "" {
		region = a.region
	}
	cacheKey := fmt.Sprintf("aws-%s-%s", region, nodeType)
	if cached := a.cache.Get(cacheKey); cached != nil {
		return cached, nil
	}

	// m5 family on-demand average, split per vCPU and GiB
	info := &models.CostInfo{
		Provider:            "aws",
		Region:              region,
		CPUCostPerCoreHour:  0.0452,
		MemoryCostPerGBHour: 0.0062,
		Currency:            "USD",
		LastUpdated:         a.clock.Now(),
	}
	a.cache.Set(cacheKey, info)
	return info, nil
}
