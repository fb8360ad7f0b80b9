// Package output renders scan results, actions and audit entries for the terminal.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

// Handler defines the interface for output formatting
type Handler interface {
	DisplayReport(ctx context.Context, report *scanner.Report) error
	DisplayActions(ctx context.Context, actions []models.ScalingAction) error
	DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error
	Format() string
}

// NewHandler returns the handler for format: text, json, yaml or commands
func NewHandler(format string, w io.Writer) (Handler, error) {
	switch format {
	case "text", "":
		return &TextHandler{w: w}, nil
	case "json":
		return &encodingHandler{format: "json", encode: jsonEncoder(w)}, nil
	case "yaml":
		return &encodingHandler{format: "yaml", encode: yamlEncoder(w)}, nil
	case "commands":
		return &CommandsHandler{w: w}, nil
	default:
		return nil, fmt.Errorf("output must be text, json, yaml or commands, got %q", format)
	}
}

func jsonEncoder(w io.Writer) func(v interface{}) error {
	return func(v interface{}) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}
}

func yamlEncoder(w io.Writer) func(v interface{}) error {
	return func(v interface{}) error {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	}
}

// encodingHandler writes structured documents
type encodingHandler struct {
	format string
	encode func(v interface{}) error
}

func (h *encodingHandler) Format() string { return h.format }

func (h *encodingHandler) DisplayReport(ctx context.Context, report *scanner.Report) error {
	return h.encode(report)
}

func (h *encodingHandler) DisplayActions(ctx context.Context, actions []models.ScalingAction) error {
	if actions == nil {
		actions = []models.ScalingAction{}
	}
	return h.encode(map[string]interface{}{
		"actions": actions,
		"count":   len(actions),
	})
}

func (h *encodingHandler) DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error {
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return h.encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// CommandsHandler prints only the kubectl commands for actionable recommendations
type CommandsHandler struct {
	w io.Writer
}

func (h *CommandsHandler) Format() string { return "commands" }

func (h *CommandsHandler) DisplayReport(ctx context.Context, report *scanner.Report) error {
	for _, res := range report.Actionable() {
		if res.Recommendation.Command == "" {
			continue
		}
		if _, err := fmt.Fprintln(h.w, res.Recommendation.Command); err != nil {
			return err
		}
	}
	return nil
}

// DisplayActions prints the restore command for every action that left a workload scaled down
func (h *CommandsHandler) DisplayActions(ctx context.Context, actions []models.ScalingAction) error {
	for _, a := range actions {
		if a.State != models.StateConfirmed || !a.Type.ReducesCapacity() {
			continue
		}
		if a.Assessment == nil || a.Assessment.RollbackPlan == nil {
			continue
		}
		if _, err := fmt.Fprintln(h.w, a.Assessment.RollbackPlan.Restore.Command); err != nil {
			return err
		}
	}
	return nil
}

func (h *CommandsHandler) DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error {
	return fmt.Errorf("commands output is not available for audit entries")
}
