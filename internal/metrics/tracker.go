package metrics

import (
	"sort"
	"sync"
	"time"
)

const completedRingCap = 10000

// CompletedRequest is one finished request's accounting record.
type CompletedRequest struct {
	RequestID string
	Provider  string
	Model     string
	CostUSD   float64
	LatencyMs float64
	CacheHit  bool
	Timestamp time.Time
}

// Percentiles holds p50/p95/p99 latency in milliseconds.
type Percentiles struct {
	P50, P95, P99 float64
}

// TrackerSnapshot is the JSON-facing report RequestTracker produces.
type TrackerSnapshot struct {
	ActiveRequests   int                `json:"active_requests"`
	CompletedTotal   int                `json:"completed_total"`
	ByProvider       map[string]int     `json:"by_provider"`
	ByModel          map[string]int     `json:"by_model"`
	CostLast1h       float64            `json:"cost_last_1h_usd"`
	CostLast24h      float64            `json:"cost_last_24h_usd"`
	CostTotal        float64            `json:"cost_total_usd"`
	LatencyPercentiles Percentiles      `json:"latency_percentiles_ms"`
	CacheHitRatio    float64            `json:"cache_hit_ratio"`
	UptimeSeconds    float64            `json:"uptime_seconds"`
}

// RequestTracker tracks in-flight requests and a bounded history of
// completed ones for the admin-facing stats endpoint (spec.md §4.9).
type RequestTracker struct {
	mu        sync.Mutex
	active    map[string]time.Time
	completed []CompletedRequest
	ringPos   int
	ringFull  bool
	startedAt time.Time
}

// NewRequestTracker builds a tracker, recording its own start time for
// uptime reporting.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		active:    make(map[string]time.Time),
		completed: make([]CompletedRequest, completedRingCap),
		startedAt: time.Now(),
	}
}

// Begin records that requestID has started.
func (t *RequestTracker) Begin(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[requestID] = time.Now()
}

// Complete removes requestID from the active set and appends it to the
// bounded completed ring, overwriting the oldest entry once full.
func (t *RequestTracker) Complete(rec CompletedRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, rec.RequestID)

	t.completed[t.ringPos] = rec
	t.ringPos = (t.ringPos + 1) % completedRingCap
	if t.ringPos == 0 {
		t.ringFull = true
	}
}

func (t *RequestTracker) liveCompleted() []CompletedRequest {
	if t.ringFull {
		return t.completed
	}
	return t.completed[:t.ringPos]
}

// Snapshot computes the full report over the current state.
func (t *RequestTracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := t.liveCompleted()
	now := time.Now()

	byProvider := make(map[string]int)
	byModel := make(map[string]int)
	var costLast1h, costLast24h, costTotal float64
	var cacheHits int
	latencies := make([]float64, 0, len(records))

	for _, r := range records {
		byProvider[r.Provider]++
		byModel[r.Model]++
		costTotal += r.CostUSD
		if now.Sub(r.Timestamp) <= time.Hour {
			costLast1h += r.CostUSD
		}
		if now.Sub(r.Timestamp) <= 24*time.Hour {
			costLast24h += r.CostUSD
		}
		if r.CacheHit {
			cacheHits++
		}
		latencies = append(latencies, r.LatencyMs)
	}

	var cacheRatio float64
	if len(records) > 0 {
		cacheRatio = float64(cacheHits) / float64(len(records))
	}

	return TrackerSnapshot{
		ActiveRequests:     len(t.active),
		CompletedTotal:     len(records),
		ByProvider:         byProvider,
		ByModel:            byModel,
		CostLast1h:         costLast1h,
		CostLast24h:        costLast24h,
		CostTotal:          costTotal,
		LatencyPercentiles: percentilesOf(latencies),
		CacheHitRatio:      cacheRatio,
		UptimeSeconds:      now.Sub(t.startedAt).Seconds(),
	}
}

func percentilesOf(values []float64) Percentiles {
	if len(values) == 0 {
		return Percentiles{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pick := func(p float64) float64 {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}

	return Percentiles{P50: pick(0.50), P95: pick(0.95), P99: pick(0.99)}
}
