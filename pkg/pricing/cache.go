package pricing

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// PriceCache caches pricing data to reduce API calls
type PriceCache struct {
	data  map[string]*cacheEntry
	ttl   time.Duration
	clock clock.PassiveClock
	mutex sync.Mutex
}

type cacheEntry struct {
	costInfo  *models.CostInfo
	expiresAt time.Time
}

// NewPriceCache creates a cache; a nil clock uses wall time
func NewPriceCache(ttl time.Duration, clk clock.PassiveClock) *PriceCache {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &PriceCache{
		data:  make(map[string]*cacheEntry),
		ttl:   ttl,
		clock: clk,
	}
}

func (c *PriceCache) Get(key string) *models.CostInfo {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.data[key]
	if !exists {
		return nil
	}

	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.data, key)
		return nil
	}

	return entry.costInfo
}

func (c *PriceCache) Set(key string, costInfo *models.CostInfo) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &cacheEntry{
		costInfo:  costInfo,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *PriceCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*cacheEntry)
}
