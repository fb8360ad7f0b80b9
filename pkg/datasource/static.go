package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// StaticSource serves request records held in memory. It backs fixture files for
// offline dry runs, and tests append records to it while actions are monitored.
type StaticSource struct {
	mu        sync.RWMutex
	name      string
	records   map[string][]models.RequestRecord
	workloads []*models.Workload
	err       error
}

// NewStaticSource creates an empty in-memory source
func NewStaticSource(name string) *StaticSource {
	return &StaticSource{
		name:    name,
		records: make(map[string][]models.RequestRecord),
	}
}

// Fixture is the on-disk format for offline analysis
type Fixture struct {
	Workloads []*models.Workload     `json:"workloads" yaml:"workloads"`
	Records   []models.RequestRecord `json:"records" yaml:"records"`
}

// LoadFixture reads a JSON or YAML fixture file
func LoadFixture(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture Fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fixture)
	default:
		err = json.Unmarshal(data, &fixture)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}

	src := NewStaticSource("fixture:" + filepath.Base(path))
	src.SetWorkloads(fixture.Workloads)
	src.Append(fixture.Records...)
	return src, nil
}

// Append adds records
func (s *StaticSource) Append(records ...models.RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records[rec.Workload] = append(s.records[rec.Workload], rec)
	}
}

// SetWorkloads replaces the workload inventory
func (s *StaticSource) SetWorkloads(workloads []*models.Workload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workloads = workloads
}

// FailWith makes every subsequent query return err; nil restores normal operation
func (s *StaticSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSource) GetRequestRecords(ctx context.Context, workload string, start, end time.Time) ([]models.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}

	var out []models.RequestRecord
	for _, rec := range s.records[workload] {
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListWorkloads returns fixture workloads, optionally filtered by namespace
func (s *StaticSource) ListWorkloads(ctx context.Context, namespace string) ([]*models.Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Workload
	for _, w := range s.workloads {
		if namespace != "" && w.Namespace != namespace {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (s *StaticSource) IsAvailable(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err == nil
}

func (s *StaticSource) Name() string {
	return s.name
}
