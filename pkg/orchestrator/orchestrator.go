// Package orchestrator applies scaling actions, watches the safety window and rolls back on real traffic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/classifier"
	"github.com/opscart/k8s-zero-scaler/pkg/datasource"
	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// MinSafetyWindow is the shortest monitoring window accepted
const MinSafetyWindow = 30 * time.Second

// Scaler changes replica counts on the control plane
type Scaler interface {
	GetReplicas(ctx context.Context, w *models.Workload) (int32, error)
	Scale(ctx context.Context, w *models.Workload, replicas int32) (time.Duration, error)
}

// Validator re-checks a safety assessment at the moment an action starts applying
type Validator interface {
	Validate(assessment *models.SafetyAssessment) error
}

// LatencyRecorder stores observed scale-up latencies
type LatencyRecorder interface {
	Record(workload string, latency time.Duration)
}

// Config controls apply, monitoring and rollout behaviour
type Config struct {
	SafetyWindow time.Duration
	PollInterval time.Duration

	ApplyTimeout        time.Duration
	ApplyRetries        int
	RetryInitialBackoff time.Duration
	RetryFactor         float64
	RetryJitter         float64

	RollbackTimeout time.Duration

	BatchSize     int
	BatchInterval time.Duration

	ArchiveSize int
	ExecutedBy  string
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		SafetyWindow:        24 * time.Hour,
		PollInterval:        time.Minute,
		ApplyTimeout:        60 * time.Second,
		ApplyRetries:        5,
		RetryInitialBackoff: time.Second,
		RetryFactor:         2.0,
		RetryJitter:         0.1,
		RollbackTimeout:     2 * time.Minute,
		BatchSize:           5,
		BatchInterval:       10 * time.Minute,
		ArchiveSize:         1000,
		ExecutedBy:          "zero-scaler",
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.SafetyWindow < MinSafetyWindow {
		return fmt.Errorf("safety window must be at least %s, got %s", MinSafetyWindow, c.SafetyWindow)
	}
	if c.PollInterval <= 0 || c.PollInterval > c.SafetyWindow {
		return fmt.Errorf("poll interval must be in (0, %s], got %s", c.SafetyWindow, c.PollInterval)
	}
	if c.ApplyTimeout <= 0 {
		return fmt.Errorf("apply timeout must be > 0")
	}
	if c.ApplyRetries < 1 {
		return fmt.Errorf("apply retries must be >= 1")
	}
	if c.RetryInitialBackoff <= 0 || c.RetryFactor < 1 {
		return fmt.Errorf("retry backoff must be > 0 with factor >= 1")
	}
	if c.RollbackTimeout <= 0 {
		return fmt.Errorf("rollback timeout must be > 0")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1")
	}
	if c.BatchInterval < 0 {
		return fmt.Errorf("batch interval must be >= 0")
	}
	return nil
}

// Deps are the collaborators an Orchestrator needs
type Deps struct {
	Scaler     Scaler
	Source     datasource.DataSource
	Classifier *classifier.Classifier
	Validator  Validator

	// Optional
	Latencies LatencyRecorder
	Alerter   Alerter
	Observers []Observer
	Clock     clock.WithTicker
	Logger    *zap.Logger
}

// Request asks for one scaling action
type Request struct {
	Workload *models.Workload
	Type     models.ActionType

	// Must be 0 for scale_to_zero; scale_up defaults to the workload's restore count
	TargetReplicas int32

	// Required for replica-reducing actions
	Assessment *models.SafetyAssessment

	// Delay keeps the action PENDING before it starts applying
	Delay          time.Duration
	RequestedBy    string
	MonthlySavings float64
}

// Orchestrator owns every in-flight scaling action
type Orchestrator struct {
	cfg        Config
	scaler     Scaler
	source     datasource.DataSource
	classifier *classifier.Classifier
	validator  Validator
	latencies  LatencyRecorder
	alerter    Alerter
	observers  []Observer
	clock      clock.WithTicker
	logger     *zap.Logger

	registry *Registry
	wg       sync.WaitGroup
}

// New creates an orchestrator
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if deps.Scaler == nil || deps.Source == nil || deps.Classifier == nil || deps.Validator == nil {
		return nil, errors.New("orchestrator requires a scaler, data source, classifier and validator")
	}

	logger := logging.OrNop(deps.Logger).Named("orchestrator")
	o := &Orchestrator{
		cfg:        cfg,
		scaler:     deps.Scaler,
		source:     deps.Source,
		classifier: deps.Classifier,
		validator:  deps.Validator,
		latencies:  deps.Latencies,
		alerter:    deps.Alerter,
		observers:  deps.Observers,
		clock:      deps.Clock,
		logger:     logger,
		registry:   NewRegistry(cfg.ArchiveSize),
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.alerter == nil {
		o.alerter = NewLogAlerter(logger)
	}
	return o, nil
}

// Config returns the active configuration
func (o *Orchestrator) Config() Config { return o.cfg }

// Registry exposes the action registry
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Submit validates a request, registers the action and starts it in the background.
// Replica-reducing actions are refused with *safety.GateRejectedError unless their assessment passes the gate.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (models.ScalingAction, error) {
	if err := ctx.Err(); err != nil {
		return models.ScalingAction{}, err
	}
	if req.Workload == nil {
		return models.ScalingAction{}, errors.New("request has no workload")
	}
	w := *req.Workload
	key := w.Key()

	target, err := targetReplicas(req)
	if err != nil {
		return models.ScalingAction{}, fmt.Errorf("%s: %w", key, err)
	}

	if req.Type.ReducesCapacity() {
		if req.Assessment != nil && req.Assessment.Workload != key {
			return models.ScalingAction{}, fmt.Errorf("assessment for %s cannot authorize an action on %s", req.Assessment.Workload, key)
		}
		if err := o.validator.Validate(req.Assessment); err != nil {
			return models.ScalingAction{}, err
		}
		if plan := req.Assessment.RollbackPlan; plan != nil && plan.BaselineReplicas != w.CurrentReplicas {
			return models.ScalingAction{}, &ReplicaDriftError{Workload: key, Expected: plan.BaselineReplicas, Actual: w.CurrentReplicas}
		}
	}

	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = o.cfg.ExecutedBy
	}

	action := models.ScalingAction{
		ID:             uuid.New().String(),
		Workload:       key,
		Kind:           w.Kind,
		Type:           req.Type,
		FromReplicas:   w.CurrentReplicas,
		TargetReplicas: target,
		State:          models.StatePending,
		CreatedAt:      o.clock.Now(),
		RequestedBy:    requestedBy,
		MonthlySavings: req.MonthlySavings,
	}
	if req.Assessment != nil {
		assessment := *req.Assessment
		action.Assessment = &assessment
	}

	e := newEntry(action, w)
	if err := o.registry.claim(e); err != nil {
		return models.ScalingAction{}, err
	}

	snap := e.snapshot()
	o.notify(snap, "")

	o.wg.Add(1)
	go o.run(e, req.Delay)

	return snap, nil
}

func targetReplicas(req Request) (int32, error) {
	w := req.Workload
	switch req.Type {
	case models.ActionScaleToZero:
		if req.TargetReplicas != 0 {
			return 0, fmt.Errorf("scale_to_zero target must be 0, got %d", req.TargetReplicas)
		}
		if w.CurrentReplicas == 0 {
			return 0, errors.New("workload is already at zero replicas")
		}
		return 0, nil
	case models.ActionRightsizing:
		if req.TargetReplicas <= 0 || req.TargetReplicas >= w.CurrentReplicas {
			return 0, fmt.Errorf("rightsizing target must be between 1 and %d, got %d", w.CurrentReplicas-1, req.TargetReplicas)
		}
		return req.TargetReplicas, nil
	case models.ActionScaleUp:
		target := req.TargetReplicas
		if target == 0 {
			target = w.RestoreReplicas()
		}
		if target <= 0 {
			return 0, errors.New("no baseline replica count to restore to")
		}
		return target, nil
	default:
		return 0, fmt.Errorf("unknown action type %q", req.Type)
	}
}

// Get returns the in-flight or archived action for a workload key or action ID
func (o *Orchestrator) Get(ref string) (models.ScalingAction, bool) {
	if e, ok := o.registry.lookup(ref); ok {
		return e.snapshot(), true
	}
	return o.registry.Find(ref)
}

// Await blocks until the action reaches a terminal state
func (o *Orchestrator) Await(ctx context.Context, actionID string) (models.ScalingAction, error) {
	e, ok := o.registry.lookupID(actionID)
	if !ok {
		if a, found := o.registry.Find(actionID); found {
			return a, nil
		}
		return models.ScalingAction{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return e.snapshot(), ctx.Err()
	}
}

// Cancel stops the action on a workload. PENDING actions fail without touching the cluster;
// MONITORING actions are rolled back. A replica-reducing action that is APPLYING is rolled back
// as soon as it reaches MONITORING. Scale-ups cannot be cancelled once applying.
func (o *Orchestrator) Cancel(workload string) error {
	e, ok := o.registry.lookup(workload)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, workload)
	}
	return o.cancel(e)
}

func (o *Orchestrator) cancel(e *entry) error {
	e.mu.Lock()
	state := e.action.State
	switch {
	case state == models.StateMonitoring:
		e.markCancelled("cancelled during monitoring")
		e.mu.Unlock()
		return nil
	case state == models.StateApplying && e.action.Type.ReducesCapacity():
		e.markCancelled("cancelled while applying")
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if state != models.StatePending {
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, e.action.Workload, state)
	}
	err := o.transition(e, models.StateFailed, func(a *models.ScalingAction) {
		a.Reason = "cancelled"
	})
	if err != nil {
		// the action moved on; retry against its new state
		return o.cancel(e)
	}
	e.requestCancel()
	return nil
}

// CancelAll cancels every cancellable action and returns how many were cancelled
func (o *Orchestrator) CancelAll() int {
	cancelled := 0
	for _, e := range o.registry.entries() {
		if err := o.cancel(e); err == nil {
			cancelled++
		}
	}
	return cancelled
}

// Wait blocks until every action goroutine has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Active returns in-flight actions
func (o *Orchestrator) Active() []models.ScalingAction {
	return o.registry.Active()
}

// History returns archived terminal actions
func (o *Orchestrator) History() []models.ScalingAction {
	return o.registry.Archived()
}

func (o *Orchestrator) run(e *entry, delay time.Duration) {
	defer o.wg.Done()
	defer close(e.done)
	defer o.registry.release(e)

	if delay > 0 {
		timer := o.clock.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C():
		case <-e.cancelCh:
			return
		}
	}

	if e.action.Type.ReducesCapacity() {
		if err := o.checkReplicas(e); err != nil {
			if !e.state().Terminal() {
				reason := "could not read replica count"
				var drift *ReplicaDriftError
				if errors.As(err, &drift) {
					reason = "replica count changed since assessment"
				}
				o.fail(e, reason, err)
			}
			return
		}
	}

	if err := o.transition(e, models.StateApplying, nil); err != nil {
		if e.state().Terminal() {
			return
		}
		o.fail(e, "safety gate check failed at apply time", err)
		return
	}

	latency, err := o.apply(e)
	if err != nil {
		o.fail(e, "apply failed", err)
		return
	}

	if !e.action.Type.ReducesCapacity() {
		if o.latencies != nil {
			o.latencies.Record(e.action.Workload, latency)
		}
		now := o.clock.Now()
		_ = o.transition(e, models.StateConfirmed, func(a *models.ScalingAction) {
			a.AppliedAt = &now
			a.RollbackLatency = latency
			a.Reason = fmt.Sprintf("restored to %d replicas in %s", a.TargetReplicas, latency.Round(time.Millisecond))
		})
		return
	}

	o.monitor(e)
}

// checkReplicas compares the live replica count with the one the action was planned from
func (o *Orchestrator) checkReplicas(e *entry) error {
	snap := e.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ApplyTimeout)
	defer cancel()

	current, err := o.scaler.GetReplicas(ctx, &e.workload)
	if err != nil {
		return fmt.Errorf("failed to read replicas of %s: %w", snap.Workload, err)
	}
	if current != snap.FromReplicas {
		return &ReplicaDriftError{Workload: snap.Workload, Expected: snap.FromReplicas, Actual: current}
	}
	return nil
}

// apply scales with bounded exponential backoff inside the apply timeout
func (o *Orchestrator) apply(e *entry) (time.Duration, error) {
	snap := e.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ApplyTimeout)
	defer cancel()

	backoff := wait.Backoff{
		Duration: o.cfg.RetryInitialBackoff,
		Factor:   o.cfg.RetryFactor,
		Jitter:   o.cfg.RetryJitter,
		Steps:    o.cfg.ApplyRetries,
	}

	var (
		attempts int
		latency  time.Duration
		lastErr  error
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempts++
		d, err := o.scaler.Scale(ctx, &e.workload, snap.TargetReplicas)
		if err != nil {
			lastErr = err
			o.logger.Warn("Scale attempt failed",
				zap.String("workload", snap.Workload),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return false, nil
		}
		latency = d
		return true, nil
	})

	e.mu.Lock()
	e.action.Attempts = attempts
	e.mu.Unlock()

	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return 0, &ControlPlaneError{Workload: snap.Workload, Replicas: snap.TargetReplicas, Attempts: attempts, Err: lastErr}
	}
	return latency, nil
}

// transition moves an action to a new state under the table and guards, then notifies observers
func (o *Orchestrator) transition(e *entry, to models.ActionState, mutate func(a *models.ScalingAction)) error {
	e.mu.Lock()
	from := e.action.State
	if to == models.StateConfirmed && e.cancelReason != "" {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCancelled, e.action.Workload)
	}
	if err := o.checkTransition(&e.action, to); err != nil {
		e.mu.Unlock()
		return err
	}
	e.action.State = to
	if mutate != nil {
		mutate(&e.action)
	}
	if to.Terminal() {
		now := o.clock.Now()
		e.action.CompletedAt = &now
	}
	snap := e.action.Snapshot()
	e.mu.Unlock()

	o.notify(snap, from)
	return nil
}

func (o *Orchestrator) fail(e *entry, reason string, err error) {
	terr := o.transition(e, models.StateFailed, func(a *models.ScalingAction) {
		a.Reason = reason
		if err != nil {
			a.Error = err.Error()
		}
	})
	if terr != nil {
		o.logger.Error("Failed to mark action failed", zap.String("workload", e.action.Workload), zap.Error(terr))
	}
}

func (o *Orchestrator) notify(action models.ScalingAction, from models.ActionState) {
	for _, obs := range o.observers {
		obs.OnTransition(action, from)
	}
}
