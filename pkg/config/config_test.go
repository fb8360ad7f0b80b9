package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Preset != PresetProduction {
		t.Errorf("Expected default preset production, got %s", cfg.Preset)
	}
	if cfg.AnalysisWindow != 72*time.Hour {
		t.Errorf("Expected analysis window 72h, got %v", cfg.AnalysisWindow)
	}
	if cfg.SafetyWindow != 24*time.Hour {
		t.Errorf("Expected safety window 24h, got %v", cfg.SafetyWindow)
	}
	if cfg.ConfidenceThreshold != 0.90 {
		t.Errorf("Expected confidence threshold 0.90, got %.2f", cfg.ConfidenceThreshold)
	}
	if cfg.PrometheusURL != "http://localhost:9090" {
		t.Errorf("Expected default Prometheus URL, got %s", cfg.PrometheusURL)
	}
	if len(cfg.ProbeUserAgents) == 0 || len(cfg.ProbePaths) == 0 {
		t.Error("Expected built-in probe signatures")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("PROMETHEUS_URL", "http://prometheus:9090")
	t.Setenv("ANALYSIS_WINDOW", "48h")
	t.Setenv("SAFETY_WINDOW", "12h")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.97")
	t.Setenv("BATCH_SIZE", "3")
	t.Setenv("PROBE_PATHS", "/ping, /status ,")
	t.Setenv("RISK_OVERRIDES", "payments/*=critical,shop/api=high")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PrometheusURL != "http://prometheus:9090" {
		t.Errorf("Expected custom Prometheus URL, got %s", cfg.PrometheusURL)
	}
	if cfg.AnalysisWindow != 48*time.Hour {
		t.Errorf("Expected window 48h from env, got %v", cfg.AnalysisWindow)
	}
	if cfg.SafetyWindow != 12*time.Hour {
		t.Errorf("Expected safety window 12h from env, got %v", cfg.SafetyWindow)
	}
	if cfg.ConfidenceThreshold != 0.97 {
		t.Errorf("Expected threshold 0.97 from env, got %.2f", cfg.ConfidenceThreshold)
	}
	if cfg.BatchSize != 3 {
		t.Errorf("Expected batch size 3, got %d", cfg.BatchSize)
	}
	if len(cfg.ProbePaths) != 2 || cfg.ProbePaths[0] != "/ping" || cfg.ProbePaths[1] != "/status" {
		t.Errorf("Expected comma separated probe paths, got %v", cfg.ProbePaths)
	}

	policy, err := cfg.SafetyPolicy()
	if err != nil {
		t.Fatalf("SafetyPolicy failed: %v", err)
	}
	if policy.Overrides["payments/*"] != models.RiskCritical || policy.Overrides["shop/api"] != models.RiskHigh {
		t.Errorf("Unexpected overrides: %v", policy.Overrides)
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		preset        string
		window        time.Duration
		safetyWindow  time.Duration
		threshold     float64
		batchSize     int
		batchInterval time.Duration
	}{
		{PresetDev, 6 * time.Hour, time.Hour, 0.85, 10, 5 * time.Minute},
		{PresetProduction, 72 * time.Hour, 24 * time.Hour, 0.90, 5, 10 * time.Minute},
		{PresetCritical, 7 * 24 * time.Hour, 72 * time.Hour, 0.95, 1, 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			t.Setenv("PRESET", tt.preset)
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.AnalysisWindow != tt.window {
				t.Errorf("window = %v, want %v", cfg.AnalysisWindow, tt.window)
			}
			if cfg.SafetyWindow != tt.safetyWindow {
				t.Errorf("safety window = %v, want %v", cfg.SafetyWindow, tt.safetyWindow)
			}
			if cfg.ConfidenceThreshold != tt.threshold {
				t.Errorf("threshold = %.2f, want %.2f", cfg.ConfidenceThreshold, tt.threshold)
			}
			if cfg.BatchSize != tt.batchSize || cfg.BatchInterval != tt.batchInterval {
				t.Errorf("batching = %d/%v, want %d/%v", cfg.BatchSize, cfg.BatchInterval, tt.batchSize, tt.batchInterval)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("PRESET", "yolo")
		if _, err := Load(""); err == nil {
			t.Error("Expected error for unknown preset")
		}
	})
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero-scaler.yaml")
	content := `preset: dev
analysis_window: 12h
storage_type: memory
probe_user_agents:
  - kube-probe/
  - internal-monitor/
risk_overrides:
  - "shop/*=MEDIUM"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BATCH_SIZE", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Preset != PresetDev {
		t.Errorf("Expected preset from file, got %s", cfg.Preset)
	}
	if cfg.AnalysisWindow != 12*time.Hour {
		t.Errorf("Expected file window 12h, got %v", cfg.AnalysisWindow)
	}
	if cfg.SafetyWindow != time.Hour {
		t.Errorf("Expected dev preset safety window, got %v", cfg.SafetyWindow)
	}
	if cfg.BatchSize != 2 {
		t.Errorf("Expected env to win over preset, got %d", cfg.BatchSize)
	}
	if cfg.StorageType != "memory" {
		t.Errorf("Expected memory storage, got %s", cfg.StorageType)
	}
	if len(cfg.ProbeUserAgents) != 2 || cfg.ProbeUserAgents[1] != "internal-monitor/" {
		t.Errorf("Unexpected probe user agents %v", cfg.ProbeUserAgents)
	}
	if cfg.RiskOverrides["shop/*"] != "MEDIUM" {
		t.Errorf("Unexpected overrides %v", cfg.RiskOverrides)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"window too short", func(c *Config) { c.AnalysisWindow = 30 * time.Minute }},
		{"window too long", func(c *Config) { c.AnalysisWindow = 8 * 24 * time.Hour }},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"unordered risk thresholds", func(c *Config) { c.RiskMediumThreshold = 0.99 }},
		{"bad override level", func(c *Config) { c.RiskOverrides = map[string]string{"shop/api": "SEVERE"} }},
		{"safety window too short", func(c *Config) { c.SafetyWindow = time.Second }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"postgres without url", func(c *Config) { c.StorageType = "postgres"; c.DatabaseURL = "" }},
		{"unknown storage", func(c *Config) { c.StorageType = "sqlite" }},
		{"bad probe cidr", func(c *Config) { c.ProbeSourceCIDRs = []string{"10.0.0.0/99"} }},
		{"bad pattern", func(c *Config) { c.PathPatterns = []string{"("} }},
		{"zero concurrency", func(c *Config) { c.ScanConcurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestComponentConfigs(t *testing.T) {
	cfg := NewConfig()
	cfg.SafetyWindow = 2 * time.Hour
	cfg.ScalerQPS = 2
	cfg.RequestMetric = "istio_requests_total"
	cfg.WorkloadLabel = "destination_workload"

	orch := cfg.OrchestratorConfig("ci-bot")
	if orch.SafetyWindow != 2*time.Hour || orch.ExecutedBy != "ci-bot" {
		t.Errorf("Unexpected orchestrator config %+v", orch)
	}
	if cfg.ScalerConfig().QPS != 2 {
		t.Errorf("Expected scaler QPS 2")
	}
	q := cfg.QueryConfig()
	if q.Metric != "istio_requests_total" || q.WorkloadLabel != "destination_workload" {
		t.Errorf("Unexpected query config %+v", q)
	}
	if cfg.ScorerConfig().Window != cfg.AnalysisWindow {
		t.Errorf("Scorer window should follow analysis window")
	}
	if p := cfg.PricingConfig(); p.DefaultCPU != 23.0 {
		t.Errorf("Expected default CPU price 23.0, got %.1f", p.DefaultCPU)
	}
}
