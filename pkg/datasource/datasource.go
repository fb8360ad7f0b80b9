// Package datasource reads observed request records from metrics and log backends.
package datasource

import (
	"context"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// DataSource defines the interface for collecting request records
type DataSource interface {
	// GetRequestRecords returns requests to workload ("namespace/name") observed in [start, end]
	GetRequestRecords(ctx context.Context, workload string, start, end time.Time) ([]models.RequestRecord, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

// WorkloadLister is implemented by sources that also know the workload inventory (fixtures)
type WorkloadLister interface {
	ListWorkloads(ctx context.Context, namespace string) ([]*models.Workload, error)
}
