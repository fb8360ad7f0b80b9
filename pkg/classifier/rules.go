package classifier

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Rule classifies a single request record. Match returns false when the rule does not apply.
type Rule interface {
	Name() string
	Match(rec models.RequestRecord) (models.Classification, bool)
}

// DefaultProbeUserAgents are user agent prefixes sent by infrastructure probes
var DefaultProbeUserAgents = []string{
	"kube-probe/",
	"ELB-HealthChecker/",
	"GoogleHC/",
	"Prometheus/",
	"Blackbox-Exporter/",
	"Consul Health Check",
	"Pingdom.com_bot",
	"UptimeRobot/",
	"Datadog/Synthetics",
	"Envoy/HC",
}

// DefaultProbePaths are endpoints that only serve liveness, readiness or scrape traffic
var DefaultProbePaths = []string{
	"/healthz",
	"/readyz",
	"/livez",
	"/health",
	"/ping",
	"/metrics",
	"/status",
	"/actuator/health",
}

// userAgentRule matches known probe user agent prefixes, case-insensitively
type userAgentRule struct {
	prefixes []string
}

func (r *userAgentRule) Name() string { return "probe-user-agent" }

func (r *userAgentRule) Match(rec models.RequestRecord) (models.Classification, bool) {
	if rec.UserAgent == "" {
		return "", false
	}
	ua := strings.ToLower(rec.UserAgent)
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(ua, prefix) {
			return models.ClassHealthCheck, true
		}
	}
	return "", false
}

// NewUserAgentRule builds a rule from user agent prefixes
func NewUserAgentRule(prefixes []string) Rule {
	lowered := make([]string, len(prefixes))
	for i, p := range prefixes {
		lowered[i] = strings.ToLower(p)
	}
	return &userAgentRule{prefixes: lowered}
}

// pathRule matches probe endpoints exactly or as a path prefix ("/healthz/db")
type pathRule struct {
	paths map[string]bool
}

func (r *pathRule) Name() string { return "probe-path" }

func (r *pathRule) Match(rec models.RequestRecord) (models.Classification, bool) {
	if rec.Path == "" {
		return "", false
	}
	path := normalizePath(rec.Path)
	if r.paths[path] {
		return models.ClassHealthCheck, true
	}
	for p := range r.paths {
		if strings.HasPrefix(path, p+"/") {
			return models.ClassHealthCheck, true
		}
	}
	return "", false
}

// NewPathRule builds a rule from probe endpoints
func NewPathRule(paths []string) Rule {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[normalizePath(p)] = true
	}
	return &pathRule{paths: set}
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// sourceRule matches requests originating from probe networks (load balancer health checkers, node kubelets)
type sourceRule struct {
	prefixes []netip.Prefix
}

func (r *sourceRule) Name() string { return "probe-source" }

func (r *sourceRule) Match(rec models.RequestRecord) (models.Classification, bool) {
	if rec.Source == "" || len(r.prefixes) == 0 {
		return "", false
	}
	addr, err := parseSourceAddr(rec.Source)
	if err != nil {
		return "", false
	}
	for _, prefix := range r.prefixes {
		if prefix.Contains(addr) {
			return models.ClassHealthCheck, true
		}
	}
	return "", false
}

func parseSourceAddr(source string) (netip.Addr, error) {
	if ap, err := netip.ParseAddrPort(source); err == nil {
		return ap.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(source)
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap(), nil
}

// NewSourceRule builds a rule from CIDR prefixes
func NewSourceRule(cidrs []string) (Rule, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid probe source CIDR %q: %w", cidr, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return &sourceRule{prefixes: prefixes}, nil
}

// PatternField selects which record field a pattern rule inspects
type PatternField string

const (
	FieldUserAgent PatternField = "userAgent"
	FieldPath      PatternField = "path"
)

// patternRule is an operator-supplied regular expression signature
type patternRule struct {
	name  string
	field PatternField
	re    *regexp.Regexp
	class models.Classification
}

func (r *patternRule) Name() string { return r.name }

func (r *patternRule) Match(rec models.RequestRecord) (models.Classification, bool) {
	value := rec.UserAgent
	if r.field == FieldPath {
		value = rec.Path
	}
	if value == "" {
		return "", false
	}
	if r.re.MatchString(value) {
		return r.class, true
	}
	return "", false
}

// NewPatternRule compiles an operator signature that labels matching records as health checks
func NewPatternRule(field PatternField, pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern %q: %w", field, pattern, err)
	}
	return &patternRule{
		name:  fmt.Sprintf("operator-%s:%s", field, pattern),
		field: field,
		re:    re,
		class: models.ClassHealthCheck,
	}, nil
}
