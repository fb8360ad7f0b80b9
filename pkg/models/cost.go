package models

import "time"

// CostInfo represents pricing information
type CostInfo struct {
	Provider            string    `json:"provider"`
	Region              string    `json:"region"`
	CPUCostPerCoreHour  float64   `json:"cpuCostPerCoreHour"`
	MemoryCostPerGBHour float64   `json:"memoryCostPerGbHour"`
	Currency            string    `json:"currency"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

// CostEstimate is the monthly cost of a workload before and after a replica change
type CostEstimate struct {
	Workload          string  `json:"workload" yaml:"workload"`
	Namespace         string  `json:"namespace" yaml:"namespace"`
	ReplicasBefore    int32   `json:"replicasBefore" yaml:"replicasBefore"`
	ReplicasAfter     int32   `json:"replicasAfter" yaml:"replicasAfter"`
	MonthlyCostBefore float64 `json:"monthlyCostBefore" yaml:"monthlyCostBefore"`
	MonthlyCostAfter  float64 `json:"monthlyCostAfter" yaml:"monthlyCostAfter"`
	Savings           float64 `json:"savings" yaml:"savings"`
	Currency          string  `json:"currency" yaml:"currency"`
	Provider          string  `json:"provider" yaml:"provider"`
}

// CostSummary aggregates estimates per namespace and for the whole cluster
type CostSummary struct {
	Namespaces map[string]*CostTotals `json:"namespaces" yaml:"namespaces"`
	Cluster    CostTotals             `json:"cluster" yaml:"cluster"`
}

// CostTotals holds summed monthly costs
type CostTotals struct {
	Workloads         int     `json:"workloads" yaml:"workloads"`
	MonthlyCostBefore float64 `json:"monthlyCostBefore" yaml:"monthlyCostBefore"`
	MonthlyCostAfter  float64 `json:"monthlyCostAfter" yaml:"monthlyCostAfter"`
	Savings           float64 `json:"savings" yaml:"savings"`
}
