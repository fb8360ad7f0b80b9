package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opscart/k8s-zero-scaler/pkg/metrics"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
	"github.com/opscart/k8s-zero-scaler/pkg/storage"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeActions struct {
	active    []models.ScalingAction
	history   []models.ScalingAction
	cancelErr map[string]error
	cancelled []string
}

func (f *fakeActions) Active() []models.ScalingAction  { return f.active }
func (f *fakeActions) History() []models.ScalingAction { return f.history }

func (f *fakeActions) Get(ref string) (models.ScalingAction, bool) {
	for _, a := range append(append([]models.ScalingAction{}, f.active...), f.history...) {
		if a.ID == ref || a.Workload == ref {
			return a, true
		}
	}
	return models.ScalingAction{}, false
}

func (f *fakeActions) Cancel(workload string) error {
	if err, ok := f.cancelErr[workload]; ok {
		return err
	}
	f.cancelled = append(f.cancelled, workload)
	return nil
}

func newTestServer(t *testing.T, actions *fakeActions, store storage.Store, gatherer prometheus.Gatherer) *httptest.Server {
	t.Helper()
	s := New(Config{}, actions, store, gatherer, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestListAndGetActions(t *testing.T) {
	actions := &fakeActions{
		active:  []models.ScalingAction{{ID: "a1", Workload: "shop/api", State: models.StateMonitoring, CreatedAt: epoch}},
		history: []models.ScalingAction{{ID: "a0", Workload: "shop/web", State: models.StateRolledBack, CreatedAt: epoch}},
	}
	ts := newTestServer(t, actions, nil, nil)

	var list actionList
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/actions", &list))
	require.Len(t, list.Active, 1)
	require.Len(t, list.History, 1)

	var a models.ScalingAction
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/actions/a1", &a))
	assert.Equal(t, models.StateMonitoring, a.State)

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/workloads/shop/web/action", &a))
	assert.Equal(t, "a0", a.ID)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/actions/missing", nil))
}

func TestGetActionFallsBackToStore(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	require.NoError(t, store.SaveAction(context.Background(), &models.ScalingAction{ID: "old", Workload: "shop/api", State: models.StateConfirmed, CreatedAt: epoch}))
	ts := newTestServer(t, &fakeActions{}, store, nil)

	var a models.ScalingAction
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/actions/old", &a))
	assert.Equal(t, models.StateConfirmed, a.State)
}

func TestCancel(t *testing.T) {
	actions := &fakeActions{
		active: []models.ScalingAction{{ID: "a1", Workload: "shop/api", State: models.StateMonitoring}},
		cancelErr: map[string]error{
			"shop/busy":    fmt.Errorf("%w: shop/busy is APPLYING", orchestrator.ErrNotCancellable),
			"shop/missing": fmt.Errorf("%w: shop/missing", orchestrator.ErrNotFound),
		},
	}
	ts := newTestServer(t, actions, nil, nil)

	post := func(path string) int {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusAccepted, post("/api/v1/workloads/shop/api/cancel"))
	assert.Equal(t, []string{"shop/api"}, actions.cancelled)
	assert.Equal(t, http.StatusConflict, post("/api/v1/workloads/shop/busy/cancel"))
	assert.Equal(t, http.StatusNotFound, post("/api/v1/workloads/shop/missing/cancel"))

	resp, err := http.Get(ts.URL + "/api/v1/workloads/shop/api/cancel")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSavingsAndAuditRequireStorage(t *testing.T) {
	ts := newTestServer(t, &fakeActions{}, nil, nil)
	assert.Equal(t, http.StatusNotImplemented, getJSON(t, ts.URL+"/api/v1/savings", nil))
	assert.Equal(t, http.StatusNotImplemented, getJSON(t, ts.URL+"/api/v1/actions/a1/audit", nil))

	store := storage.NewMemoryStore(nil)
	require.NoError(t, store.LogAction(context.Background(), &models.AuditEntry{ActionID: "a1", Workload: "shop/api", Action: models.StateApplying, Status: models.AuditSuccess}))
	ts = newTestServer(t, &fakeActions{}, store, nil)

	var entries []models.AuditEntry
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/actions/a1/audit", &entries))
	require.Len(t, entries, 1)

	var trend models.SavingsTrend
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/savings?namespace=shop&days=7", &trend))
	assert.Equal(t, 7, trend.Days)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/savings?days=-1", nil))
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	rec.OnTransition(models.ScalingAction{Type: models.ActionScaleToZero, State: models.StatePending}, "")

	ts := newTestServer(t, &fakeActions{}, storage.NewMemoryStore(nil), reg)

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/readyz", nil))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "zero_scaler_actions_transitions_total")
}
