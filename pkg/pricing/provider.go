// Package pricing supplies per-core and per-GiB hourly prices for the cost calculator.
package pricing

import (
	"context"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Provider defines the interface for cloud pricing data
type Provider interface {
	GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error)
	Region() string
	Name() string
}

// Config selects and tunes a pricing provider
type Config struct {
	// Empty means auto-detect from node labels
	Provider string
	Region   string
	// Hourly overrides for the default provider
	DefaultCPU    float64
	DefaultMemory float64
}
