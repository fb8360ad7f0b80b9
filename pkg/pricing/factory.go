package pricing

import (
	"context"
	"fmt"

	"k8s.io/client-go/kubernetes"
)

// NewProvider creates a pricing provider based on cloud detection or config.
// clientset may be nil when the provider is configured explicitly.
func NewProvider(ctx context.Context, clientset kubernetes.Interface, config *Config) (Provider, error) {
	provider := config.Provider
	region := config.Region

	if provider == "" {
		provider, region = "default", "unknown"
		if clientset != nil {
			detected, detectedRegion, err := DetectProvider(ctx, clientset)
			if err == nil {
				provider, region = detected, detectedRegion
			}
		}
	}

	switch provider {
	case "azure":
		return NewAzureProvider(region), nil
	case "aws":
		return NewAWSProvider(region), nil
	case "gcp":
		return NewGCPProvider(region), nil
	case "default":
		return NewDefaultProvider(config.DefaultCPU, config.DefaultMemory), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
