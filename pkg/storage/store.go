// Package storage persists confidence records, assessments, recommendations, actions and the audit log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for persistent storage
type Store interface {
	SaveConfidence(ctx context.Context, rec *models.ConfidenceRecord) error
	// LastBusiness returns the most recent business request seen per workload
	LastBusiness(ctx context.Context) (map[string]time.Time, error)

	SaveAssessment(ctx context.Context, assessment *models.SafetyAssessment) error

	SaveRecommendation(ctx context.Context, rec *models.Recommendation) error
	ListRecommendations(ctx context.Context, namespace string, limit int) ([]*models.Recommendation, error)

	// SaveAction inserts or updates an action by ID
	SaveAction(ctx context.Context, action *models.ScalingAction) error
	GetAction(ctx context.Context, id string) (*models.ScalingAction, error)
	ListActions(ctx context.Context, namespace string, limit int) ([]*models.ScalingAction, error)
	// RestoreLatencies returns observed restore latencies for a workload, oldest first
	RestoreLatencies(ctx context.Context, workload string, limit int) ([]time.Duration, error)

	LogAction(ctx context.Context, entry *models.AuditEntry) error
	// GetAuditLog returns entries for one action, or the most recent entries when actionID is empty
	GetAuditLog(ctx context.Context, actionID string, limit int) ([]*models.AuditEntry, error)

	GetSavingsTrend(ctx context.Context, namespace string, days int) (*models.SavingsTrend, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Type    string
	URL     string
	Timeout time.Duration
}

// New opens the configured store: "postgres" or "memory"
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(ctx, cfg.URL)
	case "memory", "":
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func namespaceOf(workload string) string {
	ns, _, err := models.ParseWorkloadKey(workload)
	if err != nil {
		return ""
	}
	return ns
}

// restoreLatency reports whether an action observed a restore and how long it took
func restoreLatency(a *models.ScalingAction) (time.Duration, bool) {
	if a.RollbackLatency <= 0 {
		return 0, false
	}
	switch {
	case a.State == models.StateRolledBack:
		return a.RollbackLatency, true
	case a.State == models.StateConfirmed && a.Type == models.ActionScaleUp:
		return a.RollbackLatency, true
	}
	return 0, false
}
