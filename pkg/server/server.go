// Package server exposes in-flight actions, history and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
	"github.com/opscart/k8s-zero-scaler/pkg/storage"
)

// Actions is the orchestrator surface the API needs
type Actions interface {
	Active() []models.ScalingAction
	History() []models.ScalingAction
	Get(ref string) (models.ScalingAction, bool)
	Cancel(workload string) error
}

// Config for the status server
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the status API
type Server struct {
	cfg      Config
	actions  Actions
	store    storage.Store
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	http     *http.Server
}

// New creates a server. store and gatherer may be nil.
func New(cfg Config, actions Actions, store storage.Store, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		actions:  actions,
		store:    store,
		gatherer: gatherer,
		logger:   logger,
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// Router creates and configures the HTTP router
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.healthz).Methods("GET")
	router.HandleFunc("/readyz", s.readyz).Methods("GET")
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/actions", s.listActions).Methods("GET")
	api.HandleFunc("/actions/{id}", s.getAction).Methods("GET")
	api.HandleFunc("/actions/{id}/audit", s.getAudit).Methods("GET")
	api.HandleFunc("/workloads/{namespace}/{name}/action", s.getWorkloadAction).Methods("GET")
	api.HandleFunc("/workloads/{namespace}/{name}/cancel", s.cancel).Methods("POST")
	api.HandleFunc("/savings", s.savings).Methods("GET")

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", zap.String("addr", s.cfg.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type actionList struct {
	Active  []models.ScalingAction `json:"active"`
	History []models.ScalingAction `json:"history"`
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	list := actionList{
		Active:  s.actions.Active(),
		History: s.actions.History(),
	}
	if list.Active == nil {
		list.Active = []models.ScalingAction{}
	}
	if list.History == nil {
		list.History = []models.ScalingAction{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if a, ok := s.actions.Get(id); ok {
		writeJSON(w, http.StatusOK, a)
		return
	}
	if s.store != nil {
		a, err := s.store.GetAction(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, a)
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeError(w, http.StatusNotFound, "action "+id+" not found")
}

func (s *Server) getWorkloadAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := models.WorkloadKey(vars["namespace"], vars["name"])
	a, ok := s.actions.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no action for "+key)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "storage is not enabled")
		return
	}
	entries, err := s.store.GetAuditLog(r.Context(), mux.Vars(r)["id"], queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := models.WorkloadKey(vars["namespace"], vars["name"])

	err := s.actions.Cancel(key)
	switch {
	case err == nil:
		s.logger.Info("Action cancelled via API", zap.String("workload", key))
		a, _ := s.actions.Get(key)
		writeJSON(w, http.StatusAccepted, a)
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) savings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "storage is not enabled")
		return
	}
	trend, err := s.store.GetSavingsTrend(r.Context(), r.URL.Query().Get("namespace"), queryInt(r, "days", 30))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
