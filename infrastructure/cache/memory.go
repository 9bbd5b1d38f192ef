package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/missatech/breach-analytics/domain/entity"
)

// MemoryReportCache is the in-process fallback used when no Redis
// instance is configured. Capacity-bounded: the oldest run is evicted
// once the bound is reached. Reports are treated as immutable after
// caching.
type MemoryReportCache struct {
	mu       sync.RWMutex
	latest   *entity.ExecutiveReport
	byRun    map[uuid.UUID]*entity.ExecutiveReport
	order    []uuid.UUID
	capacity int
}

// NewMemoryReportCache creates a cache holding up to capacity runs.
func NewMemoryReportCache(capacity int) *MemoryReportCache {
	if capacity < 1 {
		capacity = 16
	}
	return &MemoryReportCache{
		byRun:    make(map[uuid.UUID]*entity.ExecutiveReport, capacity),
		capacity: capacity,
	}
}

// StoreReport records the report and marks it latest.
func (c *MemoryReportCache) StoreReport(_ context.Context, report *entity.ExecutiveReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byRun[report.RunID]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.byRun, oldest)
		}
		c.order = append(c.order, report.RunID)
	}
	c.byRun[report.RunID] = report
	c.latest = report
	return nil
}

// LatestReport returns the most recently stored report.
func (c *MemoryReportCache) LatestReport(_ context.Context) (*entity.ExecutiveReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latest == nil {
		return nil, errors.Wrap(ErrCacheMiss, "no report stored yet")
	}
	return c.latest, nil
}

// ReportByRun returns the report for one analysis run.
func (c *MemoryReportCache) ReportByRun(_ context.Context, runID uuid.UUID) (*entity.ExecutiveReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report, ok := c.byRun[runID]
	if !ok {
		return nil, errors.Wrapf(ErrCacheMiss, "run %s", runID)
	}
	return report, nil
}

// Health always succeeds for the in-process cache.
func (c *MemoryReportCache) Health(_ context.Context) error { return nil }
