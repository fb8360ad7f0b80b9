// Package classifier labels raw request records as health-check, business or unknown traffic.
package classifier

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Config holds probe signatures
type Config struct {
	ProbeUserAgents  []string
	ProbePaths       []string
	ProbeSourceCIDRs []string

	// Operator signatures, regular expressions
	UserAgentPatterns []string
	PathPatterns      []string
}

// DefaultConfig returns the built-in probe signatures
func DefaultConfig() Config {
	return Config{
		ProbeUserAgents: append([]string(nil), DefaultProbeUserAgents...),
		ProbePaths:      append([]string(nil), DefaultProbePaths...),
	}
}

// ClassificationError reports a record that cannot be classified
type ClassificationError struct {
	Record models.RequestRecord
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("malformed request record for workload %q: %s", e.Record.Workload, e.Reason)
}

// Classifier applies an ordered rule list; the first matching rule wins
type Classifier struct {
	rules  []Rule
	logger *zap.Logger
}

// New builds a classifier from configuration. Built-in signatures come first, operator patterns after.
func New(cfg Config, logger *zap.Logger) (*Classifier, error) {
	rules := []Rule{
		NewUserAgentRule(cfg.ProbeUserAgents),
		NewPathRule(cfg.ProbePaths),
	}

	if len(cfg.ProbeSourceCIDRs) > 0 {
		rule, err := NewSourceRule(cfg.ProbeSourceCIDRs)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	for _, p := range cfg.UserAgentPatterns {
		rule, err := NewPatternRule(FieldUserAgent, p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	for _, p := range cfg.PathPatterns {
		rule, err := NewPatternRule(FieldPath, p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return NewWithRules(logger, rules...), nil
}

// NewWithRules builds a classifier from an explicit rule list
func NewWithRules(logger *zap.Logger, rules ...Rule) *Classifier {
	return &Classifier{
		rules:  rules,
		logger: logging.OrNop(logger).Named("classifier"),
	}
}

// Rules returns the rule names in evaluation order
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name()
	}
	return names
}

// ClassifyRecord labels one record. Malformed records yield an unknown sample and a *ClassificationError.
func (c *Classifier) ClassifyRecord(rec models.RequestRecord) (models.TrafficSample, error) {
	sample := models.TrafficSample{
		Workload:  rec.Workload,
		Timestamp: rec.Timestamp,
	}

	if reason := validate(rec); reason != "" {
		sample.Classification = models.ClassUnknown
		sample.Rule = "malformed"
		return sample, &ClassificationError{Record: rec, Reason: reason}
	}

	for _, rule := range c.rules {
		if class, ok := rule.Match(rec); ok {
			sample.Classification = class
			sample.Rule = rule.Name()
			return sample, nil
		}
	}

	// No signature matched. Only records that identify something are business traffic.
	if rec.Path == "" && rec.Source == "" && rec.UserAgent == "" {
		sample.Classification = models.ClassUnknown
		sample.Rule = "no-identifying-data"
		return sample, nil
	}

	sample.Classification = models.ClassBusiness
	sample.Rule = "default-business"
	return sample, nil
}

func validate(rec models.RequestRecord) string {
	switch {
	case rec.Workload == "":
		return "missing workload"
	case rec.Timestamp.IsZero():
		return "missing timestamp"
	}
	return ""
}

// Classify labels a batch. Malformed records are logged and counted as unknown; they never stop the batch.
func (c *Classifier) Classify(records []models.RequestRecord) ([]models.TrafficSample, models.ClassificationSummary) {
	samples := make([]models.TrafficSample, 0, len(records))
	var summary models.ClassificationSummary

	for _, rec := range records {
		sample, err := c.ClassifyRecord(rec)
		if err != nil {
			var cerr *ClassificationError
			if errors.As(err, &cerr) {
				summary.Malformed++
			}
			c.logger.Warn("Skipping malformed request record",
				zap.String("workload", rec.Workload),
				zap.Error(err))
		}
		summary.Add(sample.Classification)
		samples = append(samples, sample)
	}

	c.logger.Debug("Classified request records",
		zap.Int("total", summary.Total),
		zap.Int("health_check", summary.HealthCheck),
		zap.Int("business", summary.Business),
		zap.Int("unknown", summary.Unknown),
		zap.Int("malformed", summary.Malformed))

	return samples, summary
}

// HasBusiness reports whether any record in the batch is business traffic
func (c *Classifier) HasBusiness(records []models.RequestRecord) (bool, *models.TrafficSample) {
	for _, rec := range records {
		sample, err := c.ClassifyRecord(rec)
		if err != nil {
			continue
		}
		if sample.Classification == models.ClassBusiness {
			return true, &sample
		}
	}
	return false, nil
}
