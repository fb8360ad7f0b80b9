package cluster

import (
	"strconv"
	"strings"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

const (
	annotationPrefix = "zero-scaler.opscart.io/"

	// AnnotationCriticality carries the criticality tag ("production-critical", "standard")
	AnnotationCriticality = annotationPrefix + "criticality"
	// AnnotationInboundDependencies lists callers, comma separated
	AnnotationInboundDependencies = annotationPrefix + "inbound-dependencies"
	// AnnotationOutboundDependencies lists callees, comma separated
	AnnotationOutboundDependencies = annotationPrefix + "outbound-dependencies"
	// AnnotationBaselineReplicas records the replica count before a scale to zero
	AnnotationBaselineReplicas = annotationPrefix + "baseline-replicas"
	// AnnotationMinReplicas keeps warm replicas: idle workloads are rightsized to it instead of zero
	AnnotationMinReplicas = annotationPrefix + "min-replicas"
	// AnnotationExclude opts a workload out of analysis when "true"
	AnnotationExclude = annotationPrefix + "exclude"
)

func parseDependencies(annotations map[string]string) []models.Dependency {
	var deps []models.Dependency
	for _, d := range []struct {
		annotation string
		direction  models.DependencyDirection
	}{
		{AnnotationInboundDependencies, models.DependencyInbound},
		{AnnotationOutboundDependencies, models.DependencyOutbound},
	} {
		for _, name := range strings.Split(annotations[d.annotation], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			deps = append(deps, models.Dependency{Name: name, Direction: d.direction})
		}
	}
	return deps
}

func parseCriticality(annotations map[string]string) models.Criticality {
	switch strings.ToLower(strings.TrimSpace(annotations[AnnotationCriticality])) {
	case string(models.CriticalityProductionCritical), "critical":
		return models.CriticalityProductionCritical
	case string(models.CriticalityStandard):
		return models.CriticalityStandard
	default:
		return models.CriticalityNone
	}
}

func parseBaseline(annotations map[string]string) int32 {
	return parseReplicas(annotations[AnnotationBaselineReplicas])
}

func parseMinReplicas(annotations map[string]string) int32 {
	return parseReplicas(annotations[AnnotationMinReplicas])
}

func parseReplicas(value string) int32 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil || v < 0 {
		return 0
	}
	return int32(v)
}

func excluded(annotations map[string]string) bool {
	v, _ := strconv.ParseBool(annotations[AnnotationExclude])
	return v
}
