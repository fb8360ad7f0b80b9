package cluster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// ScalerConfig tunes control-plane writes
type ScalerConfig struct {
	// Control-plane requests per second and burst
	QPS   float64
	Burst int
	// Wait for ready replicas after scaling up
	WaitForReady bool
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration
}

// DefaultScalerConfig returns conservative defaults
func DefaultScalerConfig() ScalerConfig {
	return ScalerConfig{
		QPS:          5,
		Burst:        10,
		WaitForReady: true,
		ReadyTimeout: 5 * time.Minute,
		ReadyPoll:    2 * time.Second,
	}
}

// Scaler changes spec.replicas on Deployments and StatefulSets
type Scaler struct {
	clientset kubernetes.Interface
	cfg       ScalerConfig
	limiter   *rate.Limiter
	clock     clock.PassiveClock
	logger    *zap.Logger
}

// NewScaler creates a scaler
func NewScaler(clientset kubernetes.Interface, cfg ScalerConfig, clk clock.PassiveClock, logger *zap.Logger) *Scaler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Scaler{
		clientset: clientset,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		clock:     clk,
		logger:    logging.OrNop(logger).Named("scaler"),
	}
}

// GetReplicas reads the current spec.replicas
func (s *Scaler) GetReplicas(ctx context.Context, w *models.Workload) (int32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	switch w.Kind {
	case models.KindDeployment:
		d, err := s.clientset.AppsV1().Deployments(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to get deployment %s: %w", w.Key(), err)
		}
		return deploymentReplicas(d), nil
	case models.KindStatefulSet:
		sts, err := s.clientset.AppsV1().StatefulSets(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to get statefulset %s: %w", w.Key(), err)
		}
		return statefulSetReplicas(sts), nil
	default:
		return 0, fmt.Errorf("unsupported workload kind %q", w.Kind)
	}
}

// Scale sets spec.replicas and returns how long the change took to take effect.
// Scaling to zero records the previous count in the baseline annotation.
func (s *Scaler) Scale(ctx context.Context, w *models.Workload, replicas int32) (time.Duration, error) {
	if replicas < 0 {
		return 0, fmt.Errorf("replicas cannot be negative: %d", replicas)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	start := s.clock.Now()

	var err error
	switch w.Kind {
	case models.KindDeployment:
		err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
			d, err := s.clientset.AppsV1().Deployments(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
			if err != nil {
				return err
			}
			d.Annotations = withBaseline(d.Annotations, deploymentReplicas(d), replicas)
			d.Spec.Replicas = &replicas
			_, err = s.clientset.AppsV1().Deployments(w.Namespace).Update(ctx, d, metav1.UpdateOptions{})
			return err
		})
	case models.KindStatefulSet:
		err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
			sts, err := s.clientset.AppsV1().StatefulSets(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
			if err != nil {
				return err
			}
			sts.Annotations = withBaseline(sts.Annotations, statefulSetReplicas(sts), replicas)
			sts.Spec.Replicas = &replicas
			_, err = s.clientset.AppsV1().StatefulSets(w.Namespace).Update(ctx, sts, metav1.UpdateOptions{})
			return err
		})
	default:
		return 0, fmt.Errorf("unsupported workload kind %q", w.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to scale %s %s to %d: %w", w.Kind, w.Key(), replicas, err)
	}

	if replicas > 0 && s.cfg.WaitForReady {
		if err := s.waitReady(ctx, w, replicas); err != nil {
			return s.clock.Since(start), err
		}
	}

	latency := s.clock.Since(start)
	s.logger.Info("Scaled workload",
		zap.String("workload", w.Key()),
		zap.String("kind", string(w.Kind)),
		zap.Int32("replicas", replicas),
		zap.Duration("latency", latency))
	return latency, nil
}

func (s *Scaler) waitReady(ctx context.Context, w *models.Workload, replicas int32) error {
	err := wait.PollUntilContextTimeout(ctx, s.cfg.ReadyPoll, s.cfg.ReadyTimeout, true, func(ctx context.Context) (bool, error) {
		ready, err := s.readyReplicas(ctx, w)
		if err != nil {
			return false, err
		}
		return ready >= replicas, nil
	})
	if err != nil {
		return fmt.Errorf("%s did not reach %d ready replicas: %w", w.Key(), replicas, err)
	}
	return nil
}

func (s *Scaler) readyReplicas(ctx context.Context, w *models.Workload) (int32, error) {
	switch w.Kind {
	case models.KindStatefulSet:
		sts, err := s.clientset.AppsV1().StatefulSets(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
		if err != nil {
			return 0, err
		}
		return sts.Status.ReadyReplicas, nil
	default:
		d, err := s.clientset.AppsV1().Deployments(w.Namespace).Get(ctx, w.Name, metav1.GetOptions{})
		if err != nil {
			return 0, err
		}
		return d.Status.ReadyReplicas, nil
	}
}

func withBaseline(annotations map[string]string, current, target int32) map[string]string {
	if target != 0 || current == 0 {
		return annotations
	}
	if annotations == nil {
		annotations = make(map[string]string)
	}
	annotations[AnnotationBaselineReplicas] = strconv.Itoa(int(current))
	return annotations
}
