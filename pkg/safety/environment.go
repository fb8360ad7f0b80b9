package safety

import (
	"strings"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
	EnvironmentUnknown     Environment = "unknown"
)

// EnvironmentConfig holds per-environment safety defaults
type EnvironmentConfig struct {
	// Applied when a workload carries no criticality tag
	DefaultCriticality models.Criticality
	Description        string
	IsProduction       bool
}

// GetEnvironmentConfig returns configuration for a given environment
func GetEnvironmentConfig(env Environment) EnvironmentConfig {
	configs := map[Environment]EnvironmentConfig{
		EnvironmentProduction: {
			DefaultCriticality: models.CriticalityProductionCritical,
			Description:        "Production environment - conservative scaling",
			IsProduction:       true,
		},
		EnvironmentStaging: {
			DefaultCriticality: models.CriticalityStandard,
			Description:        "Staging environment - balanced scaling",
		},
		EnvironmentDevelopment: {
			DefaultCriticality: models.CriticalityStandard,
			Description:        "Development environment - aggressive scaling",
		},
		EnvironmentUnknown: {
			DefaultCriticality: models.CriticalityStandard,
			Description:        "Unknown environment - cautious scaling",
		},
	}

	if config, exists := configs[env]; exists {
		return config
	}
	return configs[EnvironmentUnknown]
}

// ClassifyNamespace determines the environment of a namespace from its labels, falling back to its name
func ClassifyNamespace(namespace string, labels map[string]string) Environment {
	if env, exists := labels["environment"]; exists {
		return NormalizeEnvironment(env)
	}

	if tier, exists := labels["tier"]; exists {
		switch strings.ToLower(tier) {
		case "prod", "production":
			return EnvironmentProduction
		case "staging", "stage":
			return EnvironmentStaging
		case "dev", "development":
			return EnvironmentDevelopment
		}
	}

	return detectEnvironmentFromName(namespace)
}

// NormalizeEnvironment converts a label value to an Environment
func NormalizeEnvironment(label string) Environment {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "production", "prod", "prd":
		return EnvironmentProduction
	case "staging", "stage", "stg":
		return EnvironmentStaging
	case "development", "dev", "test", "testing":
		return EnvironmentDevelopment
	default:
		return EnvironmentUnknown
	}
}

func detectEnvironmentFromName(namespace string) Environment {
	name := strings.ToLower(namespace)

	for _, pattern := range []string{"prod", "production", "prd"} {
		if strings.Contains(name, pattern) {
			return EnvironmentProduction
		}
	}
	for _, pattern := range []string{"staging", "stage", "stg", "uat"} {
		if strings.Contains(name, pattern) {
			return EnvironmentStaging
		}
	}
	for _, pattern := range []string{"dev", "develop", "test", "sandbox", "demo"} {
		if strings.Contains(name, pattern) {
			return EnvironmentDevelopment
		}
	}

	return EnvironmentUnknown
}

// EffectiveCriticality returns the workload's tag, or the environment default when untagged
func EffectiveCriticality(w *models.Workload) models.Criticality {
	if w.Criticality != models.CriticalityNone {
		return w.Criticality
	}
	return GetEnvironmentConfig(Environment(w.Environment)).DefaultCriticality
}
