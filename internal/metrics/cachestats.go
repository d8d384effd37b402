package metrics

import "sync"

// CacheStatsSnapshot is the JSON-facing view of CacheStats.
type CacheStatsSnapshot struct {
	Hits               int64            `json:"hits"`
	Misses             int64            `json:"misses"`
	HitRate            float64          `json:"hit_rate"`
	EstimatedSavingsUSD float64         `json:"estimated_savings_usd"`
	HitsByModel        map[string]int64 `json:"hits_by_model"`
	MissesByModel      map[string]int64 `json:"misses_by_model"`
}

// CacheStats accumulates hit/miss counts and estimated savings, broken down
// by model, for the admin-facing cache report (spec.md §4.9).
type CacheStats struct {
	mu            sync.Mutex
	hits          int64
	misses        int64
	savingsUSD    float64
	hitsByModel   map[string]int64
	missesByModel map[string]int64
}

// NewCacheStats builds an empty accumulator.
func NewCacheStats() *CacheStats {
	return &CacheStats{
		hitsByModel:   make(map[string]int64),
		missesByModel: make(map[string]int64),
	}
}

// RecordHit increments the global and per-model hit counters and the
// running savings total.
func (c *CacheStats) RecordHit(model string, estimatedSavingsUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
	c.hitsByModel[model]++
	c.savingsUSD += estimatedSavingsUSD
}

// RecordMiss increments the global and per-model miss counters.
func (c *CacheStats) RecordMiss(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	c.missesByModel[model]++
}

// Snapshot returns a point-in-time copy of the accumulated stats.
func (c *CacheStats) Snapshot() CacheStatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitsByModel := make(map[string]int64, len(c.hitsByModel))
	for k, v := range c.hitsByModel {
		hitsByModel[k] = v
	}
	missesByModel := make(map[string]int64, len(c.missesByModel))
	for k, v := range c.missesByModel {
		missesByModel[k] = v
	}

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStatsSnapshot{
		Hits:                c.hits,
		Misses:              c.misses,
		HitRate:             hitRate,
		EstimatedSavingsUSD: c.savingsUSD,
		HitsByModel:         hitsByModel,
		MissesByModel:       missesByModel,
	}
}
