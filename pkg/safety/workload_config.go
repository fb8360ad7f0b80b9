package safety

import "github.com/opscart/k8s-zero-scaler/pkg/models"

// KindConfig holds safety defaults for a workload kind
type KindConfig struct {
	Description string
	RiskFloor   models.RiskLevel
	// Whether scale-to-zero is supported at all
	ScaleToZero bool
}

// GetKindConfig returns configuration for a given workload kind
func GetKindConfig(kind models.WorkloadKind) KindConfig {
	configs := map[models.WorkloadKind]KindConfig{
		models.KindDeployment: {
			Description: "Stateless application",
			RiskFloor:   models.RiskLow,
			ScaleToZero: true,
		},
		models.KindStatefulSet: {
			Description: "Stateful application (databases, queues)",
			RiskFloor:   models.RiskMedium,
			ScaleToZero: true,
		},
	}

	if config, exists := configs[kind]; exists {
		return config
	}

	return KindConfig{
		Description: "Unknown workload kind",
		RiskFloor:   models.RiskCritical,
		ScaleToZero: false,
	}
}
