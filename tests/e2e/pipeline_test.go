//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	testclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/opscart/k8s-zero-scaler/pkg/classifier"
	"github.com/opscart/k8s-zero-scaler/pkg/cluster"
	"github.com/opscart/k8s-zero-scaler/pkg/cost"
	"github.com/opscart/k8s-zero-scaler/pkg/datasource"
	"github.com/opscart/k8s-zero-scaler/pkg/metrics"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
	"github.com/opscart/k8s-zero-scaler/pkg/pricing"
	"github.com/opscart/k8s-zero-scaler/pkg/recommender"
	"github.com/opscart/k8s-zero-scaler/pkg/safety"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
	"github.com/opscart/k8s-zero-scaler/pkg/scorer"
	"github.com/opscart/k8s-zero-scaler/pkg/storage"
)

var now = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

func deployment(name string, replicas int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Namespace: "dev", Name: name},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": name}},
				Spec: corev1.PodSpec{Containers: []corev1.Container{{
					Name: "app",
					Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("500m"),
						corev1.ResourceMemory: resource.MustParse("512Mi"),
					}},
				}}},
			},
		},
	}
}

func probeTraffic(key string) []models.RequestRecord {
	var out []models.RequestRecord
	for ts := now.Add(-24 * time.Hour); ts.Before(now); ts = ts.Add(30 * time.Second) {
		out = append(out, models.RequestRecord{Workload: key, Timestamp: ts, Path: "/healthz", UserAgent: "kube-probe/1.29"})
	}
	return out
}

func businessRequest(key string, ts time.Time) models.RequestRecord {
	return models.RequestRecord{Workload: key, Timestamp: ts, Path: "/api/cart", UserAgent: "Mozilla/5.0", Source: "198.51.100.4"}
}

type pipeline struct {
	clock     *testclock.FakeClock
	clientset *fake.Clientset
	source    *datasource.StaticSource
	store     storage.Store
	registry  *prometheus.Registry
	scanner   *scanner.Scanner
	orch      *orchestrator.Orchestrator
}

func newPipeline(ctx context.Context) *pipeline {
	logger := zap.NewNop()
	p := &pipeline{
		clock: testclock.NewFakeClock(now),
		clientset: fake.NewSimpleClientset(
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "dev", Labels: map[string]string{"environment": "development"}}},
			deployment("idle", 3),
			deployment("busy", 2),
		),
		source:   datasource.NewStaticSource("fixture"),
		registry: prometheus.NewRegistry(),
	}

	p.source.Append(probeTraffic("dev/idle")...)
	p.source.Append(probeTraffic("dev/busy")...)
	for ts := now.Add(-23 * time.Hour); ts.Before(now); ts = ts.Add(30 * time.Minute) {
		p.source.Append(businessRequest("dev/busy", ts))
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		store, err := storage.New(ctx, storage.Config{Type: "postgres", URL: url})
		Expect(err).NotTo(HaveOccurred())
		p.store = store
	} else {
		p.store = storage.NewMemoryStore(p.clock)
	}

	latencies := safety.NewLatencyHistory(0)
	cls, err := classifier.New(classifier.DefaultConfig(), logger)
	Expect(err).NotTo(HaveOccurred())
	sc, err := scorer.NewStatistical(scorer.DefaultConfig())
	Expect(err).NotTo(HaveOccurred())
	analyzer, err := safety.NewAnalyzer(safety.DefaultPolicy(), latencies, p.clock, logger)
	Expect(err).NotTo(HaveOccurred())

	p.scanner, err = scanner.New(scanner.Config{Window: 24 * time.Hour}, scanner.Deps{
		Lister:      cluster.NewInventory(p.clientset, nil, "e2e", logger),
		Source:      p.source,
		Classifier:  cls,
		Scorer:      sc,
		Analyzer:    analyzer,
		Recommender: recommender.New(cost.NewCalculator(pricing.NewDefaultProvider(0, 0)), 1.0),
		Clock:       p.clock,
		Logger:      logger,
	})
	Expect(err).NotTo(HaveOccurred())

	scalerCfg := cluster.DefaultScalerConfig()
	scalerCfg.WaitForReady = false
	orchCfg := orchestrator.DefaultConfig()
	orchCfg.RetryInitialBackoff = time.Millisecond

	p.orch, err = orchestrator.New(orchCfg, orchestrator.Deps{
		Scaler:     cluster.NewScaler(p.clientset, scalerCfg, p.clock, logger),
		Source:     p.source,
		Classifier: cls,
		Validator:  analyzer,
		Latencies:  latencies,
		Observers: []orchestrator.Observer{
			metrics.NewRecorder(p.registry),
			storage.NewRecorder(p.store, p.clock, "e2e", logger),
		},
		Clock:  p.clock,
		Logger: logger,
	})
	Expect(err).NotTo(HaveOccurred())
	return p
}

func (p *pipeline) replicas(ctx context.Context, name string) int32 {
	d, err := p.clientset.AppsV1().Deployments("dev").Get(ctx, name, metav1.GetOptions{})
	Expect(err).NotTo(HaveOccurred())
	return *d.Spec.Replicas
}

func (p *pipeline) state(ref string) models.ActionState {
	a, _ := p.orch.Get(ref)
	return a.State
}

// rollOutIdle scans, releases the idle workload and waits until it is being monitored
func (p *pipeline) rollOutIdle(ctx context.Context) models.ScalingAction {
	report, err := p.scanner.Scan(ctx, "dev")
	Expect(err).NotTo(HaveOccurred())

	var candidates []orchestrator.Candidate
	for _, res := range report.Actionable() {
		candidates = append(candidates, orchestrator.Candidate{
			Workload:       res.Workload,
			Type:           res.Recommendation.ActionType(),
			TargetReplicas: res.Recommendation.TargetReplicas,
			MonthlySavings: res.Recommendation.SavingsMonthly,
		})
	}
	Expect(candidates).To(HaveLen(1))
	Expect(candidates[0].Workload.Key()).To(Equal("dev/idle"))

	results := p.orch.Rollout(ctx, p.scanner, candidates)
	Expect(results).To(HaveLen(1))
	Expect(results[0].Err).NotTo(HaveOccurred())

	Eventually(func() models.ActionState { return p.state("dev/idle") }).Should(Equal(models.StateMonitoring))
	Eventually(p.clock.HasWaiters).Should(BeTrue())
	return *results[0].Action
}

func (p *pipeline) await(id string) models.ScalingAction {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, err := p.orch.Await(ctx, id)
	Expect(err).NotTo(HaveOccurred())
	return a
}

var _ = Describe("Zero-pod scaling pipeline", func() {
	var (
		ctx context.Context
		p   *pipeline
	)

	BeforeEach(func() {
		ctx = context.Background()
		p = newPipeline(ctx)
		DeferCleanup(func() {
			p.orch.CancelAll()
			p.orch.Wait()
			Expect(p.store.Close()).To(Succeed())
		})
	})

	It("scales an idle workload to zero and confirms it after a quiet safety window", func() {
		action := p.rollOutIdle(ctx)
		Expect(p.replicas(ctx, "idle")).To(BeZero())

		for _, offset := range []time.Duration{time.Hour, 6 * time.Hour, 20 * time.Hour} {
			p.source.Append(models.RequestRecord{Workload: "dev/idle", Timestamp: now.Add(offset), Path: "/healthz", UserAgent: "kube-probe/1.29"})
		}
		p.clock.Step(24 * time.Hour)

		final := p.await(action.ID)
		Expect(final.State).To(Equal(models.StateConfirmed))
		Expect(p.replicas(ctx, "idle")).To(BeZero())
		Expect(p.replicas(ctx, "busy")).To(Equal(int32(2)))

		stored, err := p.store.GetAction(ctx, action.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.State).To(Equal(models.StateConfirmed))

		audit, err := p.store.GetAuditLog(ctx, action.ID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(audit)).To(BeNumerically(">=", 3))

		series, err := testutil.GatherAndCount(p.registry, "zero_scaler_actions_transitions_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(series).To(BeNumerically(">", 0))
	})

	It("rolls back to the baseline when business traffic arrives during monitoring", func() {
		action := p.rollOutIdle(ctx)

		p.source.Append(businessRequest("dev/idle", now.Add(2*time.Hour)))
		p.clock.Step(2*time.Hour + time.Minute)

		final := p.await(action.ID)
		Expect(final.State).To(Equal(models.StateRolledBack))
		Expect(final.Reason).To(ContainSubstring("business request"))
		Expect(p.replicas(ctx, "idle")).To(Equal(int32(3)))

		stored, err := p.store.GetAction(ctx, action.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.State).To(Equal(models.StateRolledBack))
	})

	It("restores a monitored workload when the action is cancelled", func() {
		action := p.rollOutIdle(ctx)

		Expect(p.orch.Cancel("dev/idle")).To(Succeed())
		final := p.await(action.ID)
		Expect(final.State).To(Equal(models.StateRolledBack))
		Expect(p.replicas(ctx, "idle")).To(Equal(int32(3)))
	})

	It("refuses to scale a workload that still serves business traffic", func() {
		report, err := p.scanner.Scan(ctx, "dev")
		Expect(err).NotTo(HaveOccurred())

		var busy *scanner.Result
		for _, res := range report.Results {
			if res.Workload.Key() == "dev/busy" {
				busy = res
			}
		}
		Expect(busy).NotTo(BeNil())
		Expect(busy.Assessment.Approved()).To(BeFalse())

		_, err = p.orch.Submit(ctx, orchestrator.Request{
			Workload:   busy.Workload,
			Type:       models.ActionScaleToZero,
			Assessment: busy.Assessment,
		})
		var rejected *safety.GateRejectedError
		Expect(errors.As(err, &rejected)).To(BeTrue())
		Expect(p.replicas(ctx, "busy")).To(Equal(int32(2)))
	})
})
