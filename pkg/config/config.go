// Package config loads the zero-scaler configuration from defaults, an optional file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opscart/k8s-zero-scaler/pkg/classifier"
	"github.com/opscart/k8s-zero-scaler/pkg/cluster"
	"github.com/opscart/k8s-zero-scaler/pkg/datasource"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
	"github.com/opscart/k8s-zero-scaler/pkg/pricing"
	"github.com/opscart/k8s-zero-scaler/pkg/safety"
	"github.com/opscart/k8s-zero-scaler/pkg/scorer"
	"github.com/opscart/k8s-zero-scaler/pkg/storage"
)

// Preset names
const (
	PresetDev        = "dev"
	PresetProduction = "production"
	PresetCritical   = "critical"
)

// Config holds application configuration
type Config struct {
	Preset string

	// Prometheus
	PrometheusURL  string
	RequestMetric  string
	WorkloadLabel  string
	QueryStep      time.Duration
	TrafficFixture string

	// Storage
	StorageEnabled bool
	StorageType    string
	DatabaseURL    string

	// Traffic classification
	ProbeUserAgents   []string
	ProbePaths        []string
	ProbeSourceCIDRs  []string
	UserAgentPatterns []string
	PathPatterns      []string

	// Confidence scoring
	AnalysisWindow  time.Duration
	ExpectedMinRate float64
	RecencyTau      time.Duration
	ConfidenceTTL   time.Duration

	// Safety gate
	ConfidenceThreshold float64
	RiskLowThreshold    float64
	RiskMediumThreshold float64
	RiskHighThreshold   float64
	AssessmentTTL       time.Duration
	RollbackLatency     time.Duration
	// "namespace/name" or "namespace/*" to minimum risk level
	RiskOverrides map[string]string

	// Orchestration
	SafetyWindow    time.Duration
	PollInterval    time.Duration
	ApplyTimeout    time.Duration
	ApplyRetries    int
	RollbackTimeout time.Duration
	BatchSize       int
	BatchInterval   time.Duration
	ScalerQPS       float64
	ScalerBurst     int
	WaitForReady    bool
	ReadyTimeout    time.Duration
	AlertWebhookURL string
	ListenAddr      string

	// Cost
	PricingProvider   string
	PricingRegion     string
	DefaultCPUCost    float64
	DefaultMemoryCost float64
	MinSavings        float64

	ScanConcurrency int

	// Output
	OutputFormat string // text, json, yaml, commands
	Verbose      bool
}

type preset struct {
	window        time.Duration
	safetyWindow  time.Duration
	threshold     float64
	batchSize     int
	batchInterval time.Duration
}

var presets = map[string]preset{
	PresetDev:        {window: 6 * time.Hour, safetyWindow: time.Hour, threshold: 0.85, batchSize: 10, batchInterval: 5 * time.Minute},
	PresetProduction: {window: 72 * time.Hour, safetyWindow: 24 * time.Hour, threshold: 0.90, batchSize: 5, batchInterval: 10 * time.Minute},
	PresetCritical:   {window: 7 * 24 * time.Hour, safetyWindow: 72 * time.Hour, threshold: 0.95, batchSize: 1, batchInterval: 30 * time.Minute},
}

// NewConfig creates a configuration from defaults and environment variables.
// Malformed environment values fall back to the defaults; use Load to surface them.
func NewConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		return fromViper(newViper(PresetProduction))
	}
	return cfg
}

// Load resolves the configuration. Precedence: env > file > preset > defaults.
// path may be empty.
func Load(path string) (*Config, error) {
	probe := viper.New()
	probe.AutomaticEnv()
	if path != "" {
		probe.SetConfigFile(path)
		if err := probe.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	presetName := strings.ToLower(probe.GetString("PRESET"))
	if presetName == "" {
		presetName = PresetProduction
	}
	if _, ok := presets[presetName]; !ok {
		return nil, fmt.Errorf("unknown preset %q, expected dev, production or critical", presetName)
	}

	v := newViper(presetName)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	cfg.Preset = presetName
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newViper(presetName string) *viper.Viper {
	p := presets[presetName]
	scorerDefaults := scorer.DefaultConfig()
	policy := safety.DefaultPolicy()
	orch := orchestrator.DefaultConfig()
	scaler := cluster.DefaultScalerConfig()
	query := datasource.DefaultQueryConfig()
	probes := classifier.DefaultConfig()

	v := viper.New()
	v.SetDefault("PRESET", presetName)

	v.SetDefault("PROMETHEUS_URL", "http://localhost:9090")
	v.SetDefault("REQUEST_METRIC", query.Metric)
	v.SetDefault("WORKLOAD_LABEL", query.WorkloadLabel)
	v.SetDefault("QUERY_STEP", query.Step)
	v.SetDefault("TRAFFIC_FIXTURE", "")

	v.SetDefault("STORAGE_ENABLED", true)
	v.SetDefault("STORAGE_TYPE", "postgres")
	v.SetDefault("DATABASE_URL", "host=localhost port=5432 user=scaler password=devpassword dbname=zeroscaler sslmode=disable")

	v.SetDefault("PROBE_USER_AGENTS", probes.ProbeUserAgents)
	v.SetDefault("PROBE_PATHS", probes.ProbePaths)
	v.SetDefault("PROBE_SOURCE_CIDRS", []string{})
	v.SetDefault("USER_AGENT_PATTERNS", []string{})
	v.SetDefault("PATH_PATTERNS", []string{})

	v.SetDefault("ANALYSIS_WINDOW", p.window)
	v.SetDefault("EXPECTED_MIN_RATE", scorerDefaults.ExpectedMinRate)
	v.SetDefault("RECENCY_TAU", scorerDefaults.RecencyTau)
	v.SetDefault("CONFIDENCE_TTL", scorerDefaults.TTL)

	v.SetDefault("CONFIDENCE_THRESHOLD", p.threshold)
	v.SetDefault("RISK_LOW_THRESHOLD", policy.LowThreshold)
	v.SetDefault("RISK_MEDIUM_THRESHOLD", policy.MediumThreshold)
	v.SetDefault("RISK_HIGH_THRESHOLD", policy.HighThreshold)
	v.SetDefault("ASSESSMENT_TTL", policy.AssessmentTTL)
	v.SetDefault("ROLLBACK_LATENCY", policy.DefaultRollbackLatency)
	v.SetDefault("RISK_OVERRIDES", []string{})

	v.SetDefault("SAFETY_WINDOW", p.safetyWindow)
	v.SetDefault("POLL_INTERVAL", orch.PollInterval)
	v.SetDefault("APPLY_TIMEOUT", orch.ApplyTimeout)
	v.SetDefault("APPLY_RETRIES", orch.ApplyRetries)
	v.SetDefault("ROLLBACK_TIMEOUT", orch.RollbackTimeout)
	v.SetDefault("BATCH_SIZE", p.batchSize)
	v.SetDefault("BATCH_INTERVAL", p.batchInterval)
	v.SetDefault("SCALER_QPS", scaler.QPS)
	v.SetDefault("SCALER_BURST", scaler.Burst)
	v.SetDefault("WAIT_FOR_READY", scaler.WaitForReady)
	v.SetDefault("READY_TIMEOUT", scaler.ReadyTimeout)
	v.SetDefault("ALERT_WEBHOOK_URL", "")
	v.SetDefault("LISTEN_ADDR", ":8080")

	v.SetDefault("PRICING_PROVIDER", "")
	v.SetDefault("PRICING_REGION", "")
	v.SetDefault("DEFAULT_CPU_COST", 23.0)
	v.SetDefault("DEFAULT_MEMORY_COST", 3.0)
	v.SetDefault("MIN_SAVINGS", 1.0)

	v.SetDefault("SCAN_CONCURRENCY", 4)
	v.SetDefault("OUTPUT_FORMAT", "text")
	v.SetDefault("VERBOSE", false)

	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Preset: v.GetString("PRESET"),

		PrometheusURL:  v.GetString("PROMETHEUS_URL"),
		RequestMetric:  v.GetString("REQUEST_METRIC"),
		WorkloadLabel:  v.GetString("WORKLOAD_LABEL"),
		QueryStep:      v.GetDuration("QUERY_STEP"),
		TrafficFixture: v.GetString("TRAFFIC_FIXTURE"),

		StorageEnabled: v.GetBool("STORAGE_ENABLED"),
		StorageType:    v.GetString("STORAGE_TYPE"),
		DatabaseURL:    v.GetString("DATABASE_URL"),

		ProbeUserAgents:   stringList(v, "PROBE_USER_AGENTS"),
		ProbePaths:        stringList(v, "PROBE_PATHS"),
		ProbeSourceCIDRs:  stringList(v, "PROBE_SOURCE_CIDRS"),
		UserAgentPatterns: stringList(v, "USER_AGENT_PATTERNS"),
		PathPatterns:      stringList(v, "PATH_PATTERNS"),

		AnalysisWindow:  v.GetDuration("ANALYSIS_WINDOW"),
		ExpectedMinRate: v.GetFloat64("EXPECTED_MIN_RATE"),
		RecencyTau:      v.GetDuration("RECENCY_TAU"),
		ConfidenceTTL:   v.GetDuration("CONFIDENCE_TTL"),

		ConfidenceThreshold: v.GetFloat64("CONFIDENCE_THRESHOLD"),
		RiskLowThreshold:    v.GetFloat64("RISK_LOW_THRESHOLD"),
		RiskMediumThreshold: v.GetFloat64("RISK_MEDIUM_THRESHOLD"),
		RiskHighThreshold:   v.GetFloat64("RISK_HIGH_THRESHOLD"),
		AssessmentTTL:       v.GetDuration("ASSESSMENT_TTL"),
		RollbackLatency:     v.GetDuration("ROLLBACK_LATENCY"),
		RiskOverrides:       keyValues(stringList(v, "RISK_OVERRIDES")),

		SafetyWindow:    v.GetDuration("SAFETY_WINDOW"),
		PollInterval:    v.GetDuration("POLL_INTERVAL"),
		ApplyTimeout:    v.GetDuration("APPLY_TIMEOUT"),
		ApplyRetries:    v.GetInt("APPLY_RETRIES"),
		RollbackTimeout: v.GetDuration("ROLLBACK_TIMEOUT"),
		BatchSize:       v.GetInt("BATCH_SIZE"),
		BatchInterval:   v.GetDuration("BATCH_INTERVAL"),
		ScalerQPS:       v.GetFloat64("SCALER_QPS"),
		ScalerBurst:     v.GetInt("SCALER_BURST"),
		WaitForReady:    v.GetBool("WAIT_FOR_READY"),
		ReadyTimeout:    v.GetDuration("READY_TIMEOUT"),
		AlertWebhookURL: v.GetString("ALERT_WEBHOOK_URL"),
		ListenAddr:      v.GetString("LISTEN_ADDR"),

		PricingProvider:   v.GetString("PRICING_PROVIDER"),
		PricingRegion:     v.GetString("PRICING_REGION"),
		DefaultCPUCost:    v.GetFloat64("DEFAULT_CPU_COST"),
		DefaultMemoryCost: v.GetFloat64("DEFAULT_MEMORY_COST"),
		MinSavings:        v.GetFloat64("MIN_SAVINGS"),

		ScanConcurrency: v.GetInt("SCAN_CONCURRENCY"),
		OutputFormat:    v.GetString("OUTPUT_FORMAT"),
		Verbose:         v.GetBool("VERBOSE"),
	}
	return cfg
}

// stringList reads a list from a file (YAML sequence) or the environment (comma separated)
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []interface{}:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = []string{fmt.Sprint(val)}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// keyValues parses "key=value" items; items without "=" are kept with an empty value so Validate reports them
func keyValues(items []string) map[string]string {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		key, value, _ := strings.Cut(item, "=")
		out[strings.TrimSpace(key)] = strings.ToUpper(strings.TrimSpace(value))
	}
	return out
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.StorageEnabled {
		switch c.StorageType {
		case "postgres":
			if c.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL must be set when postgres storage is enabled")
			}
		case "memory":
		default:
			return fmt.Errorf("storage type must be postgres or memory, got %q", c.StorageType)
		}
	}
	if c.ScanConcurrency <= 0 {
		return fmt.Errorf("scan concurrency must be > 0")
	}
	if c.MinSavings < 0 {
		return fmt.Errorf("minimum savings must be >= 0")
	}
	if err := c.ScorerConfig().Validate(); err != nil {
		return err
	}
	if _, err := c.SafetyPolicy(); err != nil {
		return err
	}
	if err := c.OrchestratorConfig("").Validate(); err != nil {
		return err
	}
	if _, err := classifier.New(c.ClassifierConfig(), nil); err != nil {
		return fmt.Errorf("invalid probe signatures: %w", err)
	}
	return nil
}

// ClassifierConfig returns the probe signatures
func (c *Config) ClassifierConfig() classifier.Config {
	return classifier.Config{
		ProbeUserAgents:   c.ProbeUserAgents,
		ProbePaths:        c.ProbePaths,
		ProbeSourceCIDRs:  c.ProbeSourceCIDRs,
		UserAgentPatterns: c.UserAgentPatterns,
		PathPatterns:      c.PathPatterns,
	}
}

// ScorerConfig returns the confidence scorer parameters
func (c *Config) ScorerConfig() scorer.Config {
	cfg := scorer.DefaultConfig()
	cfg.Window = c.AnalysisWindow
	cfg.ExpectedMinRate = c.ExpectedMinRate
	cfg.RecencyTau = c.RecencyTau
	cfg.TTL = c.ConfidenceTTL
	return cfg
}

// SafetyPolicy returns the validated gate policy
func (c *Config) SafetyPolicy() (safety.Policy, error) {
	policy := safety.Policy{
		LowThreshold:           c.RiskLowThreshold,
		MediumThreshold:        c.RiskMediumThreshold,
		HighThreshold:          c.RiskHighThreshold,
		ConfidenceThreshold:    c.ConfidenceThreshold,
		AssessmentTTL:          c.AssessmentTTL,
		DefaultRollbackLatency: c.RollbackLatency,
	}
	if len(c.RiskOverrides) > 0 {
		policy.Overrides = make(map[string]models.RiskLevel, len(c.RiskOverrides))
		for key, level := range c.RiskOverrides {
			policy.Overrides[key] = models.RiskLevel(level)
		}
	}
	if err := policy.Validate(); err != nil {
		return safety.Policy{}, err
	}
	return policy, nil
}

// OrchestratorConfig returns the orchestrator settings
func (c *Config) OrchestratorConfig(executedBy string) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.SafetyWindow = c.SafetyWindow
	cfg.PollInterval = c.PollInterval
	cfg.ApplyTimeout = c.ApplyTimeout
	cfg.ApplyRetries = c.ApplyRetries
	cfg.RollbackTimeout = c.RollbackTimeout
	cfg.BatchSize = c.BatchSize
	cfg.BatchInterval = c.BatchInterval
	if executedBy != "" {
		cfg.ExecutedBy = executedBy
	}
	return cfg
}

// ScalerConfig returns the control-plane write settings
func (c *Config) ScalerConfig() cluster.ScalerConfig {
	cfg := cluster.DefaultScalerConfig()
	cfg.QPS = c.ScalerQPS
	cfg.Burst = c.ScalerBurst
	cfg.WaitForReady = c.WaitForReady
	cfg.ReadyTimeout = c.ReadyTimeout
	return cfg
}

// QueryConfig returns the Prometheus request query settings
func (c *Config) QueryConfig() datasource.QueryConfig {
	cfg := datasource.DefaultQueryConfig()
	cfg.Metric = c.RequestMetric
	cfg.WorkloadLabel = c.WorkloadLabel
	if c.QueryStep > 0 {
		cfg.Step = c.QueryStep
	}
	return cfg
}

// PricingConfig returns the pricing provider selection
func (c *Config) PricingConfig() *pricing.Config {
	return &pricing.Config{
		Provider:      c.PricingProvider,
		Region:        c.PricingRegion,
		DefaultCPU:    c.DefaultCPUCost,
		DefaultMemory: c.DefaultMemoryCost,
	}
}

// StorageConfig returns the store selection; ok is false when storage is disabled
func (c *Config) StorageConfig() (storage.Config, bool) {
	return storage.Config{Type: c.StorageType, URL: c.DatabaseURL}, c.StorageEnabled
}
