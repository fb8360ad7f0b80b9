package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Severity of an alert
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is raised when an action needs human attention
type Alert struct {
	Severity  Severity  `json:"severity"`
	Workload  string    `json:"workload"`
	ActionID  string    `json:"actionId"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Alerter delivers alerts
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// LogAlerter writes alerts to the logger
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-only alerter
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert logs at error level for critical alerts, warn otherwise
func (l *LogAlerter) Alert(ctx context.Context, alert Alert) error {
	fields := []zap.Field{
		zap.String("severity", string(alert.Severity)),
		zap.String("workload", alert.Workload),
		zap.String("action", alert.ActionID),
		zap.String("error", alert.Error),
	}
	if alert.Severity == SeverityCritical {
		l.logger.Error(alert.Message, fields...)
	} else {
		l.logger.Warn(alert.Message, fields...)
	}
	return nil
}

// WebhookAlerter POSTs alerts as JSON
type WebhookAlerter struct {
	url    string
	client *http.Client
}

// NewWebhookAlerter creates an alerter posting to url
func NewWebhookAlerter(url string, timeout time.Duration) *WebhookAlerter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAlerter{url: url, client: &http.Client{Timeout: timeout}}
}

// Alert posts the alert and fails on non-2xx responses
func (w *WebhookAlerter) Alert(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiAlerter fans an alert out to every alerter and returns the first error
type MultiAlerter []Alerter

// Alert delivers to all alerters
func (m MultiAlerter) Alert(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, a := range m {
		if err := a.Alert(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
