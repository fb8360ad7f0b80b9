package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate(ctx context.Context) error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SaveConfidence stores a confidence record
func (s *PostgresStore) SaveConfidence(ctx context.Context, rec *models.ConfidenceRecord) error {
	query := `
		INSERT INTO confidence_records (
			workload, namespace, window_start, window_end,
			business_request_rate, business_ratio, idle_confidence, last_business_at,
			health_check_count, business_count, unknown_count, insufficient_data,
			scorer, computed_at, valid_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Workload, namespaceOf(rec.Workload), rec.WindowStart, rec.WindowEnd,
		rec.BusinessRequestRate, rec.BusinessRatio, rec.IdleConfidence, rec.LastBusinessAt,
		rec.Summary.HealthCheck, rec.Summary.Business, rec.Summary.Unknown, rec.InsufficientData,
		rec.Scorer, rec.ComputedAt, rec.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("failed to save confidence for %s: %w", rec.Workload, err)
	}
	return nil
}

// LastBusiness returns the latest business timestamp per workload
func (s *PostgresStore) LastBusiness(ctx context.Context) (map[string]time.Time, error) {
	query := `
		SELECT workload, MAX(last_business_at)
		FROM confidence_records
		WHERE last_business_at IS NOT NULL
		GROUP BY workload
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var workload string
		var last time.Time
		if err := rows.Scan(&workload, &last); err != nil {
			return nil, err
		}
		out[workload] = last
	}
	return out, rows.Err()
}

// SaveAssessment stores a safety assessment
func (s *PostgresStore) SaveAssessment(ctx context.Context, a *models.SafetyAssessment) error {
	query := `
		INSERT INTO safety_assessments (
			workload, namespace, risk_level, idle_confidence, baseline_replicas,
			estimated_rollback_latency_ms, decision, reasons,
			confidence_computed_at, computed_at, valid_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var baseline sql.NullInt32
	if a.RollbackPlan != nil {
		baseline = sql.NullInt32{Int32: a.RollbackPlan.BaselineReplicas, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		a.Workload, namespaceOf(a.Workload), a.RiskLevel, a.IdleConfidence, baseline,
		a.EstimatedRollbackLatency.Milliseconds(), a.Decision, strings.Join(a.Reasons, "; "),
		a.ConfidenceComputedAt, a.ComputedAt, a.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("failed to save assessment for %s: %w", a.Workload, err)
	}
	return nil
}

// SaveRecommendation saves a recommendation
func (s *PostgresStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if rec.Workload == nil {
		return fmt.Errorf("recommendation %s has no workload", rec.ID)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO recommendations (
			id, cluster_id, namespace, name, kind, environment,
			type, current_replicas, target_replicas, idle_confidence,
			risk, reason, savings_monthly, impact, command, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: rec.Confidence.IdleConfidence, Valid: true}
	}

	w := rec.Workload
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, w.ClusterID, w.Namespace, w.Name, w.Kind, rec.Environment,
		rec.Type, w.CurrentReplicas, rec.TargetReplicas, confidence,
		rec.Risk, rec.Reason, rec.SavingsMonthly, rec.Impact, rec.Command, rec.CreatedAt,
	)
	return err
}

// ListRecommendations retrieves recommendations for a namespace ("" for all)
func (s *PostgresStore) ListRecommendations(ctx context.Context, namespace string, limit int) ([]*models.Recommendation, error) {
	query := `
		SELECT id, cluster_id, namespace, name, kind, environment,
			type, current_replicas, target_replicas, idle_confidence,
			risk, reason, savings_monthly, impact, command, created_at
		FROM recommendations
		WHERE ($1 = '' OR namespace = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, namespace, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recommendations []*models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var workload models.Workload
		var confidence sql.NullFloat64

		err := rows.Scan(
			&rec.ID, &workload.ClusterID, &workload.Namespace, &workload.Name, &workload.Kind, &rec.Environment,
			&rec.Type, &workload.CurrentReplicas, &rec.TargetReplicas, &confidence,
			&rec.Risk, &rec.Reason, &rec.SavingsMonthly, &rec.Impact, &rec.Command, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		workload.Environment = rec.Environment
		rec.Workload = &workload
		if confidence.Valid {
			rec.Confidence = &models.ConfidenceRecord{Workload: workload.Key(), IdleConfidence: confidence.Float64}
		}

		recommendations = append(recommendations, &rec)
	}

	return recommendations, rows.Err()
}

// SaveAction upserts a scaling action
func (s *PostgresStore) SaveAction(ctx context.Context, a *models.ScalingAction) error {
	if a.ID == "" {
		return fmt.Errorf("action has no ID")
	}

	var assessment []byte
	if a.Assessment != nil {
		var err error
		if assessment, err = json.Marshal(a.Assessment); err != nil {
			return fmt.Errorf("failed to encode assessment: %w", err)
		}
	}

	query := `
		INSERT INTO scaling_actions (
			id, workload, namespace, kind, type, from_replicas, target_replicas,
			state, reason, error, attempts, assessment,
			created_at, applied_at, monitoring_until, completed_at,
			rollback_latency_ms, requested_by, monthly_savings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			error = EXCLUDED.error,
			attempts = EXCLUDED.attempts,
			applied_at = EXCLUDED.applied_at,
			monitoring_until = EXCLUDED.monitoring_until,
			completed_at = EXCLUDED.completed_at,
			rollback_latency_ms = EXCLUDED.rollback_latency_ms
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Workload, namespaceOf(a.Workload), a.Kind, a.Type, a.FromReplicas, a.TargetReplicas,
		a.State, a.Reason, a.Error, a.Attempts, nullJSON(assessment),
		a.CreatedAt, a.AppliedAt, a.MonitoringUntil, a.CompletedAt,
		a.RollbackLatency.Milliseconds(), a.RequestedBy, a.MonthlySavings,
	)
	if err != nil {
		return fmt.Errorf("failed to save action %s: %w", a.ID, err)
	}
	return nil
}

const actionColumns = `
	id, workload, kind, type, from_replicas, target_replicas,
	state, reason, error, attempts, assessment,
	created_at, applied_at, monitoring_until, completed_at,
	rollback_latency_ms, requested_by, monthly_savings
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*models.ScalingAction, error) {
	var a models.ScalingAction
	var assessment []byte
	var appliedAt, monitoringUntil, completedAt sql.NullTime
	var latencyMillis int64

	err := row.Scan(
		&a.ID, &a.Workload, &a.Kind, &a.Type, &a.FromReplicas, &a.TargetReplicas,
		&a.State, &a.Reason, &a.Error, &a.Attempts, &assessment,
		&a.CreatedAt, &appliedAt, &monitoringUntil, &completedAt,
		&latencyMillis, &a.RequestedBy, &a.MonthlySavings,
	)
	if err != nil {
		return nil, err
	}

	if len(assessment) > 0 {
		a.Assessment = &models.SafetyAssessment{}
		if err := json.Unmarshal(assessment, a.Assessment); err != nil {
			return nil, fmt.Errorf("failed to decode assessment for action %s: %w", a.ID, err)
		}
	}
	a.AppliedAt = timePtr(appliedAt)
	a.MonitoringUntil = timePtr(monitoringUntil)
	a.CompletedAt = timePtr(completedAt)
	a.RollbackLatency = time.Duration(latencyMillis) * time.Millisecond
	return &a, nil
}

// GetAction retrieves an action by ID
func (s *PostgresStore) GetAction(ctx context.Context, id string) (*models.ScalingAction, error) {
	query := `SELECT ` + actionColumns + ` FROM scaling_actions WHERE id = $1`

	a, err := scanAction(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return a, err
}

// ListActions returns the newest actions for a namespace ("" for all)
func (s *PostgresStore) ListActions(ctx context.Context, namespace string, limit int) ([]*models.ScalingAction, error) {
	query := `SELECT ` + actionColumns + `
		FROM scaling_actions
		WHERE ($1 = '' OR namespace = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, namespace, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.ScalingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// RestoreLatencies returns restore latencies observed for a workload, oldest first
func (s *PostgresStore) RestoreLatencies(ctx context.Context, workload string, limit int) ([]time.Duration, error) {
	query := `
		SELECT rollback_latency_ms FROM (
			SELECT rollback_latency_ms, created_at
			FROM scaling_actions
			WHERE workload = $1
				AND rollback_latency_ms > 0
				AND (state = 'ROLLED_BACK' OR (state = 'CONFIRMED' AND type = 'scale_up'))
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, workload, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Duration
	for rows.Next() {
		var millis int64
		if err := rows.Scan(&millis); err != nil {
			return nil, err
		}
		out = append(out, time.Duration(millis)*time.Millisecond)
	}
	return out, rows.Err()
}

// LogAction logs an action to the audit trail
func (s *PostgresStore) LogAction(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}

	query := `
		INSERT INTO audit_log (
			id, action_id, workload, action, status,
			error_message, executed_by, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.ActionID, entry.Workload, entry.Action, entry.Status,
		entry.ErrorMessage, entry.ExecutedBy, entry.ExecutedAt,
	)

	return err
}

// GetAuditLog retrieves audit log entries for an action, oldest first
func (s *PostgresStore) GetAuditLog(ctx context.Context, actionID string, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, action_id, workload, action, status,
			error_message, executed_by, executed_at
		FROM (
			SELECT * FROM audit_log
			WHERE ($1 = '' OR action_id::text = $1)
			ORDER BY executed_at DESC
			LIMIT $2
		) recent
		ORDER BY executed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, actionID, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var errorMessage, executedBy sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.ActionID, &entry.Workload, &entry.Action, &entry.Status,
			&errorMessage, &executedBy, &entry.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}

		if errorMessage.Valid {
			entry.ErrorMessage = errorMessage.String
		}
		if executedBy.Valid {
			entry.ExecutedBy = executedBy.String
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// GetSavingsTrend aggregates replica-reducing actions per day
func (s *PostgresStore) GetSavingsTrend(ctx context.Context, namespace string, days int) (*models.SavingsTrend, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be > 0, got %d", days)
	}

	query := `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
			COUNT(*),
			COALESCE(SUM(monthly_savings), 0),
			COUNT(*) FILTER (WHERE state = 'CONFIRMED'),
			COUNT(*) FILTER (WHERE state = 'ROLLED_BACK'),
			COALESCE(SUM(monthly_savings) FILTER (WHERE state = 'CONFIRMED'), 0)
		FROM scaling_actions
		WHERE ($1 = '' OR namespace = $1)
			AND type IN ('scale_to_zero', 'rightsizing')
			AND created_at >= $2
		GROUP BY day
		ORDER BY day
	`

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.db.QueryContext(ctx, query, namespace, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trend := &models.SavingsTrend{Namespace: namespace, Days: days}
	for rows.Next() {
		var dp models.SavingsDataPoint
		if err := rows.Scan(&dp.Date, &dp.ActionCount, &dp.ProjectedSavings,
			&dp.ConfirmedCount, &dp.RolledBackCount, &dp.RealizedSavings); err != nil {
			return nil, err
		}
		dp.Date = dp.Date.UTC()
		trend.DataPoints = append(trend.DataPoints, dp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trend.Finalize()
	return trend, nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
