// Package location caches the latest position reported by each driver.
package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/ride-hub/internal/domain"
)

// Cache holds at most one sample per driver. It does not check roles.
type Cache struct {
	mu      sync.RWMutex
	samples map[string]domain.LocationSample
}

func NewCache() *Cache {
	return &Cache{samples: make(map[string]domain.LocationSample)}
}

func (c *Cache) Update(driverID string, s domain.LocationSample) {
	s.DriverID = driverID

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[driverID] = s
}

func (c *Cache) Get(driverID string) (domain.LocationSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.samples[driverID]
	if !ok {
		return domain.LocationSample{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *Cache) Remove(driverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.samples, driverID)
}

// Prune drops samples received before cutoff and returns how many were dropped.
func (c *Cache) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, s := range c.samples {
		if s.SampledAt.Before(cutoff) {
			delete(c.samples, id)
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples)
}

// RunJanitor prunes samples older than ttl every interval until ctx is done.
func (c *Cache) RunJanitor(ctx context.Context, ttl, interval time.Duration, log *slog.Logger) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := c.Prune(now.Add(-ttl)); n > 0 {
				log.Debug("stale driver locations pruned", "count", n)
			}
		}
	}
}
