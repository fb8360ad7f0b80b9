package safety

import (
	"sync"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/stats"
)

const defaultLatencyHistorySize = 50

// LatencyHistory keeps the most recent observed restore latencies per workload
type LatencyHistory struct {
	mu      sync.RWMutex
	size    int
	samples map[string][]time.Duration
}

// NewLatencyHistory creates a history keeping up to size samples per workload
func NewLatencyHistory(size int) *LatencyHistory {
	if size <= 0 {
		size = defaultLatencyHistorySize
	}
	return &LatencyHistory{
		size:    size,
		samples: make(map[string][]time.Duration),
	}
}

// Record adds an observed latency
func (h *LatencyHistory) Record(workload string, latency time.Duration) {
	if latency < 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	s := append(h.samples[workload], latency)
	if len(s) > h.size {
		s = s[len(s)-h.size:]
	}
	h.samples[workload] = s
}

// Seed loads previously persisted latencies, oldest first
func (h *LatencyHistory) Seed(workload string, latencies []time.Duration) {
	for _, l := range latencies {
		h.Record(workload, l)
	}
}

// P95 returns the 95th percentile latency for a workload
func (h *LatencyHistory) P95(workload string) (time.Duration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := h.samples[workload]
	if len(s) == 0 {
		return 0, false
	}
	return stats.DurationPercentile(s, 95), true
}

// Count returns the number of recorded latencies for a workload
func (h *LatencyHistory) Count(workload string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples[workload])
}
