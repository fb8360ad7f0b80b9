package datasource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("prometheus unavailable")

// QueryConfig names the request counter and its labels
type QueryConfig struct {
	Metric         string
	NamespaceLabel string
	WorkloadLabel  string
	PathLabel      string
	UserAgentLabel string
	SourceLabel    string
	StatusLabel    string
	Step           time.Duration
	// Upper bound on records expanded from one query
	MaxRecords int
}

// DefaultQueryConfig matches the common http_requests_total instrumentation
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Metric:         "http_requests_total",
		NamespaceLabel: "namespace",
		WorkloadLabel:  "service",
		PathLabel:      "path",
		UserAgentLabel: "user_agent",
		SourceLabel:    "source",
		StatusLabel:    "code",
		Step:           time.Minute,
		MaxRecords:     500000,
	}
}

// Querier is the subset of the Prometheus HTTP API used here
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
	QueryRange(ctx context.Context, query string, r v1.Range, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

type PrometheusSource struct {
	client  Querier
	url     string
	query   QueryConfig
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewPrometheusSource(url string, query QueryConfig, logger *zap.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	src := NewPrometheusSourceWithAPI(v1.NewAPI(client), query, logger)
	src.url = url
	return src, nil
}

// NewPrometheusSourceWithAPI wraps an existing API client
func NewPrometheusSourceWithAPI(client Querier, query QueryConfig, logger *zap.Logger) *PrometheusSource {
	logger = logging.OrNop(logger).Named("prometheus")
	if query.Step <= 0 {
		query.Step = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prometheus",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &PrometheusSource{
		client:  client,
		query:   query,
		breaker: breaker,
		logger:  logger,
	}
}

// RequestQuery builds the range query for a workload: per-step request counts by path, user agent and source.
// Each point is the raw counter delta since the previous step, so consecutive points tile the range without
// extrapolation, and a series that first appears inside a step counts its whole value. The counter must be
// recorded in front of the pods (ingress or mesh) to keep reporting while the workload is at zero.
func (p *PrometheusSource) RequestQuery(namespace, name string) string {
	q := p.query
	by := []string{}
	for _, label := range []string{q.PathLabel, q.UserAgentLabel, q.SourceLabel, q.StatusLabel} {
		if label != "" {
			by = append(by, label)
		}
	}
	selector := fmt.Sprintf(`%s{%s="%s",%s="%s"}`,
		q.Metric,
		q.NamespaceLabel, escapeLabelValue(namespace),
		q.WorkloadLabel, escapeLabelValue(name))
	step := model.Duration(q.Step).String()
	return fmt.Sprintf(`sum by (%s) (clamp_min(%s - %s offset %s, 0) or (%s unless %s offset %s))`,
		strings.Join(by, ","),
		selector, selector, step,
		selector, selector, step)
}

// GetRequestRecords expands per-step counter increases into individual request records
func (p *PrometheusSource) GetRequestRecords(ctx context.Context, workload string, start, end time.Time) ([]models.RequestRecord, error) {
	namespace, name, err := models.ParseWorkloadKey(workload)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, nil
	}

	query := p.RequestQuery(namespace, name)
	r := v1.Range{Start: start, End: end, Step: p.query.Step}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		value, warnings, err := p.client.QueryRange(ctx, query, r)
		if err != nil {
			return nil, err
		}
		if len(warnings) > 0 {
			p.logger.Warn("Prometheus returned warnings", zap.Strings("warnings", warnings), zap.String("query", query))
		}
		return value, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("request query failed for %s: %w", workload, err)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for %s", result, workload)
	}

	return p.expand(workload, matrix, start, end), nil
}

func (p *PrometheusSource) expand(workload string, matrix model.Matrix, start, end time.Time) []models.RequestRecord {
	var records []models.RequestRecord
	truncated := false

	for _, stream := range matrix {
		path := string(stream.Metric[model.LabelName(p.query.PathLabel)])
		userAgent := string(stream.Metric[model.LabelName(p.query.UserAgentLabel)])
		source := string(stream.Metric[model.LabelName(p.query.SourceLabel)])
		status := parseStatus(string(stream.Metric[model.LabelName(p.query.StatusLabel)]))

		for _, pair := range stream.Values {
			ts := pair.Timestamp.Time().UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			count := requestCount(float64(pair.Value))
			for i := 0; i < count; i++ {
				if p.query.MaxRecords > 0 && len(records) >= p.query.MaxRecords {
					truncated = true
					break
				}
				records = append(records, models.RequestRecord{
					Workload:  workload,
					Timestamp: ts,
					Path:      path,
					Source:    source,
					UserAgent: userAgent,
					Status:    status,
				})
			}
		}
	}

	if truncated {
		p.logger.Warn("Request records truncated",
			zap.String("workload", workload),
			zap.Int("max_records", p.query.MaxRecords))
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

// requestCount rounds a positive delta up so a partial sample never hides a request
func requestCount(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return int(math.Ceil(v))
}

func parseStatus(s string) int {
	var code int
	if _, err := fmt.Sscanf(s, "%d", &code); err != nil {
		return 0
	}
	return code
}

func escapeLabelValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		_, _, err := p.client.Query(ctx, "up", time.Now())
		return nil, err
	})
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}
