package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// MemoryStore keeps everything in process. Used for dry runs and tests.
type MemoryStore struct {
	mu              sync.RWMutex
	clock           clock.PassiveClock
	confidence      []*models.ConfidenceRecord
	assessments     []*models.SafetyAssessment
	recommendations []*models.Recommendation
	actions         map[string]*models.ScalingAction
	audit           []*models.AuditEntry
}

// NewMemoryStore creates an empty store. A nil clock uses real time.
func NewMemoryStore(clk clock.PassiveClock) *MemoryStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{
		clock:   clk,
		actions: make(map[string]*models.ScalingAction),
	}
}

func (m *MemoryStore) SaveConfidence(ctx context.Context, rec *models.ConfidenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.confidence = append(m.confidence, &cp)
	return nil
}

func (m *MemoryStore) LastBusiness(ctx context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time)
	for _, rec := range m.confidence {
		if rec.LastBusinessAt == nil {
			continue
		}
		if prev, ok := out[rec.Workload]; !ok || rec.LastBusinessAt.After(prev) {
			out[rec.Workload] = *rec.LastBusinessAt
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveAssessment(ctx context.Context, assessment *models.SafetyAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *assessment
	m.assessments = append(m.assessments, &cp)
	return nil
}

func (m *MemoryStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if rec.Workload == nil {
		return fmt.Errorf("recommendation %s has no workload", rec.ID)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.recommendations = append(m.recommendations, &cp)
	return nil
}

func (m *MemoryStore) ListRecommendations(ctx context.Context, namespace string, limit int) ([]*models.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Recommendation
	for i := len(m.recommendations) - 1; i >= 0; i-- {
		rec := m.recommendations[i]
		if namespace != "" && rec.Workload.Namespace != namespace {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveAction(ctx context.Context, action *models.ScalingAction) error {
	if action.ID == "" {
		return fmt.Errorf("action has no ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := action.Snapshot()
	m.actions[action.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAction(ctx context.Context, id string) (*models.ScalingAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	cp := a.Snapshot()
	return &cp, nil
}

// sortedActions returns actions newest first; callers hold the read lock
func (m *MemoryStore) sortedActions() []*models.ScalingAction {
	out := make([]*models.ScalingAction, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) ListActions(ctx context.Context, namespace string, limit int) ([]*models.ScalingAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.ScalingAction
	for _, a := range m.sortedActions() {
		if namespace != "" && namespaceOf(a.Workload) != namespace {
			continue
		}
		cp := a.Snapshot()
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) RestoreLatencies(ctx context.Context, workload string, limit int) ([]time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []time.Duration
	for _, a := range m.sortedActions() {
		if a.Workload != workload {
			continue
		}
		if d, ok := restoreLatency(a); ok {
			out = append(out, d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *MemoryStore) LogAction(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = m.clock.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *MemoryStore) GetAuditLog(ctx context.Context, actionID string, limit int) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.AuditEntry
	for _, e := range m.audit {
		if actionID != "" && e.ActionID != actionID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) GetSavingsTrend(ctx context.Context, namespace string, days int) (*models.SavingsTrend, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be > 0, got %d", days)
	}
	since := m.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	points := make(map[time.Time]*models.SavingsDataPoint)
	for _, a := range m.actions {
		if a.CreatedAt.Before(since) || !a.Type.ReducesCapacity() {
			continue
		}
		if namespace != "" && namespaceOf(a.Workload) != namespace {
			continue
		}
		day := a.CreatedAt.UTC().Truncate(24 * time.Hour)
		dp, ok := points[day]
		if !ok {
			dp = &models.SavingsDataPoint{Date: day}
			points[day] = dp
		}
		dp.ActionCount++
		dp.ProjectedSavings += a.MonthlySavings
		switch a.State {
		case models.StateConfirmed:
			dp.ConfirmedCount++
			dp.RealizedSavings += a.MonthlySavings
		case models.StateRolledBack:
			dp.RolledBackCount++
		}
	}

	trend := &models.SavingsTrend{Namespace: namespace, Days: days}
	for _, dp := range points {
		trend.DataPoints = append(trend.DataPoints, *dp)
	}
	sort.Slice(trend.DataPoints, func(i, j int) bool { return trend.DataPoints[i].Date.Before(trend.DataPoints[j].Date) })
	trend.Finalize()
	return trend, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
