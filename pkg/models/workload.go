package models

import (
	"fmt"
	"strings"
)

// WorkloadKind is the Kubernetes kind that owns the scaled replicas
type WorkloadKind string

const (
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
)

// Criticality tags a workload's importance to the business
type Criticality string

const (
	CriticalityNone               Criticality = ""
	CriticalityStandard           Criticality = "standard"
	CriticalityProductionCritical Criticality = "production-critical"
)

// DependencyDirection tells whether a dependency calls into the workload or out of it
type DependencyDirection string

const (
	DependencyInbound  DependencyDirection = "inbound"
	DependencyOutbound DependencyDirection = "outbound"
)

// Dependency is a declared relationship to another service
type Dependency struct {
	Name      string              `json:"name" yaml:"name"`
	Direction DependencyDirection `json:"direction" yaml:"direction"`
}

// Workload represents a scalable Kubernetes workload
type Workload struct {
	Kind        WorkloadKind `json:"kind" yaml:"kind"`
	Namespace   string       `json:"namespace" yaml:"namespace"`
	Name        string       `json:"name" yaml:"name"`
	ClusterID   string       `json:"clusterId,omitempty" yaml:"clusterId,omitempty"`
	Environment string       `json:"environment,omitempty" yaml:"environment,omitempty"`

	CurrentReplicas  int32 `json:"currentReplicas" yaml:"currentReplicas"`
	BaselineReplicas int32 `json:"baselineReplicas" yaml:"baselineReplicas"`
	// Replicas kept warm when idle; 0 allows scaling to zero
	MinReplicas int32 `json:"minReplicas,omitempty" yaml:"minReplicas,omitempty"`

	// Per-pod requests: CPU in millicores, memory in bytes
	RequestedCPU    int64 `json:"requestedCpu" yaml:"requestedCpu"`
	RequestedMemory int64 `json:"requestedMemory" yaml:"requestedMemory"`

	// Observed usage across all pods, when metrics-server is available
	UsageCPU    int64 `json:"usageCpu,omitempty" yaml:"usageCpu,omitempty"`
	UsageMemory int64 `json:"usageMemory,omitempty" yaml:"usageMemory,omitempty"`

	Criticality  Criticality  `json:"criticality,omitempty" yaml:"criticality,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Key returns the workload identifier used across the pipeline ("namespace/name")
func (w *Workload) Key() string {
	return WorkloadKey(w.Namespace, w.Name)
}

// WorkloadKey builds a workload identifier
func WorkloadKey(namespace, name string) string {
	return namespace + "/" + name
}

// ParseWorkloadKey splits "namespace/name"
func ParseWorkloadKey(key string) (namespace, name string, err error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid workload key %q, expected namespace/name", key)
	}
	return parts[0], parts[1], nil
}

// InboundDependencies returns the dependencies that call into this workload
func (w *Workload) InboundDependencies() []Dependency {
	var inbound []Dependency
	for _, dep := range w.Dependencies {
		if dep.Direction == DependencyInbound {
			inbound = append(inbound, dep)
		}
	}
	return inbound
}

// RestoreReplicas is the replica count a restore should bring the workload back to
func (w *Workload) RestoreReplicas() int32 {
	if w.CurrentReplicas > 0 {
		return w.CurrentReplicas
	}
	return w.BaselineReplicas
}
