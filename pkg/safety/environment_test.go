package safety

import (
	"testing"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

func TestClassifyNamespace(t *testing.T) {
	tests := []struct {
		namespace string
		labels    map[string]string
		want      Environment
	}{
		{"shop", map[string]string{"environment": "Prod"}, EnvironmentProduction},
		{"shop", map[string]string{"environment": "qa-blue"}, EnvironmentUnknown},
		{"shop", map[string]string{"tier": "stage"}, EnvironmentStaging},
		{"payments-prod", nil, EnvironmentProduction},
		{"checkout-uat", nil, EnvironmentStaging},
		{"team-sandbox", nil, EnvironmentDevelopment},
		{"shop", nil, EnvironmentUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyNamespace(tt.namespace, tt.labels); got != tt.want {
			t.Errorf("ClassifyNamespace(%q, %v) = %s, want %s", tt.namespace, tt.labels, got, tt.want)
		}
	}
}

func TestEffectiveCriticality(t *testing.T) {
	w := &models.Workload{Environment: string(EnvironmentProduction)}
	if got := EffectiveCriticality(w); got != models.CriticalityProductionCritical {
		t.Errorf("Expected production-critical default, got %q", got)
	}

	w.Environment = string(EnvironmentDevelopment)
	if got := EffectiveCriticality(w); got != models.CriticalityStandard {
		t.Errorf("Expected standard default, got %q", got)
	}

	w.Criticality = models.CriticalityProductionCritical
	if got := EffectiveCriticality(w); got != models.CriticalityProductionCritical {
		t.Errorf("Explicit tag must win, got %q", got)
	}
}

func TestLatencyHistoryBounded(t *testing.T) {
	h := NewLatencyHistory(3)
	if _, ok := h.P95("a/b"); ok {
		t.Fatal("Expected no P95 without samples")
	}
	for i := 1; i <= 5; i++ {
		h.Record("a/b", 0)
	}
	if h.Count("a/b") != 3 {
		t.Errorf("Expected 3 samples retained, got %d", h.Count("a/b"))
	}
}
