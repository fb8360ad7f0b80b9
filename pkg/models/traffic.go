package models

import "time"

// Classification is the label assigned to an observed request
type Classification string

const (
	ClassHealthCheck Classification = "health-check"
	ClassBusiness    Classification = "business"
	ClassUnknown     Classification = "unknown"
)

// RequestRecord is a raw request observed by the metrics/log collaborator
type RequestRecord struct {
	Workload  string    `json:"workload" yaml:"workload"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Path      string    `json:"path,omitempty" yaml:"path,omitempty"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	UserAgent string    `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Status    int       `json:"status,omitempty" yaml:"status,omitempty"`
}

// TrafficSample is a classified request
type TrafficSample struct {
	Workload       string         `json:"workload"`
	Timestamp      time.Time      `json:"timestamp"`
	Classification Classification `json:"classification"`
	Rule           string         `json:"rule,omitempty"`
}

// ClassificationSummary counts samples per class
type ClassificationSummary struct {
	HealthCheck int `json:"healthCheck" yaml:"healthCheck"`
	Business    int `json:"business" yaml:"business"`
	Unknown     int `json:"unknown" yaml:"unknown"`
	Malformed   int `json:"malformed" yaml:"malformed"`
	Total       int `json:"total" yaml:"total"`
}

// Known returns the number of samples usable for ratio calculations
func (s ClassificationSummary) Known() int {
	return s.HealthCheck + s.Business
}

// Add folds a single classification into the summary
func (s *ClassificationSummary) Add(c Classification) {
	switch c {
	case ClassHealthCheck:
		s.HealthCheck++
	case ClassBusiness:
		s.Business++
	default:
		s.Unknown++
	}
	s.Total++
}
