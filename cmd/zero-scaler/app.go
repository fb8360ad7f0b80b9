package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/classifier"
	"github.com/opscart/k8s-zero-scaler/pkg/cluster"
	"github.com/opscart/k8s-zero-scaler/pkg/config"
	"github.com/opscart/k8s-zero-scaler/pkg/cost"
	"github.com/opscart/k8s-zero-scaler/pkg/datasource"
	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/metrics"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
	"github.com/opscart/k8s-zero-scaler/pkg/output"
	"github.com/opscart/k8s-zero-scaler/pkg/pricing"
	"github.com/opscart/k8s-zero-scaler/pkg/recommender"
	"github.com/opscart/k8s-zero-scaler/pkg/safety"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
	"github.com/opscart/k8s-zero-scaler/pkg/scorer"
	"github.com/opscart/k8s-zero-scaler/pkg/server"
	"github.com/opscart/k8s-zero-scaler/pkg/storage"
)

// app holds every wired component for one command invocation
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.WithTicker

	clients   *cluster.Clients // nil in offline fixture mode
	inventory *cluster.Inventory
	source    datasource.DataSource
	lister    datasource.WorkloadLister

	store     storage.Store // nil when storage is disabled
	registry  *prometheus.Registry
	metrics   *metrics.Recorder
	latencies *safety.LatencyHistory

	classifier *classifier.Classifier
	analyzer   *safety.Analyzer
	scanner    *scanner.Scanner
}

// setupOptions selects the optional parts of the wiring
type setupOptions struct {
	// needCluster fails setup when no cluster is reachable
	needCluster bool
	// storeOnly skips the analysis pipeline (history, audit and savings)
	storeOnly bool
}

func newLogger(component string) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Development: devLogs,
		Verbose:     verbose,
		Component:   component,
	})
	if err != nil {
		return nil, err
	}
	logging.RedirectKlog(logger)
	return logger, nil
}

func newApp(ctx context.Context, component string, opts setupOptions) (*app, error) {
	logger, err := newLogger(component)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	if outputFormat == "" {
		outputFormat = cfg.OutputFormat
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		clock:     clock.RealClock{},
		latencies: safety.NewLatencyHistory(0),
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}
	if opts.storeOnly {
		return a, nil
	}

	if err := a.initSources(ctx, opts.needCluster); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPipeline(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// initStorage opens the store when enabled. Failure to connect only disables persistence.
func (a *app) initStorage(ctx context.Context) error {
	storeCfg, enabled := a.cfg.StorageConfig()
	if !enabled {
		a.logger.Debug("Storage disabled")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := storage.New(connectCtx, storeCfg)
	if err != nil {
		a.logger.Warn("Storage unavailable, continuing without persistence", zap.Error(err))
		return nil
	}
	a.store = store
	a.logger.Info("Storage connected", zap.String("type", storeCfg.Type))
	return nil
}

func (a *app) initSources(ctx context.Context, needCluster bool) error {
	path := fixturePath
	if path == "" {
		path = a.cfg.TrafficFixture
	}

	var fixture *datasource.StaticSource
	if path != "" {
		var err error
		fixture, err = datasource.LoadFixture(path)
		if err != nil {
			return err
		}
		a.source = fixture
		a.logger.Info("Using traffic fixture", zap.String("path", path))
	}

	clients, err := cluster.NewClients(kubeconfig)
	if err == nil {
		if version, verr := clients.ServerVersion(); verr == nil {
			a.clients = clients
			a.inventory = cluster.NewInventory(clients.Kube, clients.Metrics, clusterID, a.logger)
			a.logger.Info("Connected to cluster", zap.String("version", version))
		} else {
			err = verr
		}
	}
	if a.clients == nil {
		if needCluster {
			return fmt.Errorf("failed to connect to cluster: %w", err)
		}
		a.logger.Debug("No cluster connection", zap.Error(err))
	}

	switch {
	case fixture != nil && hasWorkloads(ctx, fixture):
		a.lister = fixture
	case a.inventory != nil:
		a.lister = a.inventory
	default:
		return fmt.Errorf("no workload inventory: connect to a cluster or provide a fixture with workloads")
	}

	if a.source == nil {
		prom, err := datasource.NewPrometheusSource(a.cfg.PrometheusURL, a.cfg.QueryConfig(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to create Prometheus source: %w", err)
		}
		if !prom.IsAvailable(ctx) {
			a.logger.Warn("Prometheus is not reachable; workloads will report insufficient data",
				zap.String("url", a.cfg.PrometheusURL))
		}
		a.source = prom
	}
	return nil
}

func hasWorkloads(ctx context.Context, lister datasource.WorkloadLister) bool {
	workloads, err := lister.ListWorkloads(ctx, "")
	return err == nil && len(workloads) > 0
}

func (a *app) initPipeline(ctx context.Context) error {
	cls, err := classifier.New(a.cfg.ClassifierConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("invalid classifier config: %w", err)
	}
	a.classifier = cls

	sc, err := scorer.NewStatistical(a.cfg.ScorerConfig())
	if err != nil {
		return fmt.Errorf("invalid scorer config: %w", err)
	}

	policy, err := a.cfg.SafetyPolicy()
	if err != nil {
		return err
	}
	a.analyzer, err = safety.NewAnalyzer(policy, a.latencies, a.clock, a.logger)
	if err != nil {
		return err
	}

	provider, err := pricing.NewProvider(ctx, a.pricingClientset(), a.cfg.PricingConfig())
	if err != nil {
		return fmt.Errorf("failed to create pricing provider: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewRecorder(a.registry)

	a.scanner, err = scanner.New(
		scanner.Config{Window: a.cfg.AnalysisWindow, Concurrency: a.cfg.ScanConcurrency},
		scanner.Deps{
			Lister:      a.lister,
			Source:      a.source,
			Classifier:  a.classifier,
			Scorer:      sc,
			Analyzer:    a.analyzer,
			Recommender: recommender.New(cost.NewCalculator(provider), a.cfg.MinSavings),
			Clock:       a.clock,
			Logger:      a.logger,
		})
	if err != nil {
		return err
	}

	a.seedFromStore(ctx)
	return nil
}

// seedFromStore restores last-business timestamps and restore latencies from earlier runs
func (a *app) seedFromStore(ctx context.Context) {
	if a.store == nil {
		return
	}

	last, err := a.store.LastBusiness(ctx)
	if err != nil {
		a.logger.Warn("Failed to load last business activity", zap.Error(err))
	} else {
		a.scanner.SeedLastBusiness(last)
	}

	workloads, err := a.lister.ListWorkloads(ctx, "")
	if err != nil {
		return
	}
	for _, w := range workloads {
		latencies, err := a.store.RestoreLatencies(ctx, w.Key(), 0)
		if err != nil {
			a.logger.Warn("Failed to load restore latencies", zap.String("workload", w.Key()), zap.Error(err))
			continue
		}
		if len(latencies) > 0 {
			a.latencies.Seed(w.Key(), latencies)
		}
	}
}

func (a *app) pricingClientset() kubernetes.Interface {
	if a.clients == nil {
		return nil
	}
	return a.clients.Kube
}

// observeScan exports scan results as metrics and persists them when storage is enabled
func (a *app) observeScan(ctx context.Context, report *scanner.Report, persist bool) {
	for _, res := range report.Results {
		if res.Confidence != nil {
			a.metrics.ObserveConfidence(res.Confidence)
		}
		if res.Assessment != nil {
			a.metrics.ObserveAssessment(res.Assessment)
		}
		if res.Recommendation != nil {
			a.metrics.ObserveRecommendation(res.Recommendation)
		}
		if !persist || a.store == nil {
			continue
		}
		if res.Confidence != nil {
			if err := a.store.SaveConfidence(ctx, res.Confidence); err != nil {
				a.logger.Warn("Failed to save confidence", zap.String("workload", res.Workload.Key()), zap.Error(err))
			}
		}
		if res.Assessment != nil {
			if err := a.store.SaveAssessment(ctx, res.Assessment); err != nil {
				a.logger.Warn("Failed to save assessment", zap.String("workload", res.Workload.Key()), zap.Error(err))
			}
		}
		if res.Recommendation != nil {
			if err := a.store.SaveRecommendation(ctx, res.Recommendation); err != nil {
				a.logger.Warn("Failed to save recommendation", zap.String("workload", res.Workload.Key()), zap.Error(err))
			}
		}
	}
}

func (a *app) output() (output.Handler, error) {
	return output.NewHandler(outputFormat, os.Stdout)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close storage", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// newOrchestrator wires the scaler, alerting and transition observers
func (a *app) newOrchestrator(executedBy string) (*orchestrator.Orchestrator, error) {
	if a.clients == nil {
		return nil, fmt.Errorf("scaling requires a cluster connection")
	}

	alerters := orchestrator.MultiAlerter{orchestrator.NewLogAlerter(a.logger)}
	if a.cfg.AlertWebhookURL != "" {
		alerters = append(alerters, orchestrator.NewWebhookAlerter(a.cfg.AlertWebhookURL, 10*time.Second))
	}

	observers := []orchestrator.Observer{orchestrator.LogObserver(a.logger), a.metrics}
	if a.store != nil {
		observers = append(observers, storage.NewRecorder(a.store, a.clock, executedBy, a.logger))
	}

	return orchestrator.New(a.cfg.OrchestratorConfig(executedBy), orchestrator.Deps{
		Scaler:     cluster.NewScaler(a.clients.Kube, a.cfg.ScalerConfig(), a.clock, a.logger),
		Source:     a.source,
		Classifier: a.classifier,
		Validator:  a.analyzer,
		Latencies:  a.latencies,
		Alerter:    alerters,
		Observers:  observers,
		Clock:      a.clock,
		Logger:     a.logger,
	})
}

// serve runs the status API until ctx is cancelled. An empty address disables it.
func (a *app) serve(ctx context.Context, addr string, actions server.Actions) {
	if addr == "" {
		return
	}
	srv := server.New(server.Config{Addr: addr}, actions, a.store, a.registry, a.logger)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status server stopped", zap.Error(err))
		}
	}()
}

func executedBy() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "zero-scaler"
}
