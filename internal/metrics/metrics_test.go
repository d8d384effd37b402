package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/metrics"
)

func TestCacheStatsHitRate(t *testing.T) {
	cs := metrics.NewCacheStats()
	cs.RecordHit("gpt-4o", 0.002)
	cs.RecordHit("gpt-4o", 0.002)
	cs.RecordMiss("gpt-4o")

	snap := cs.Snapshot()
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.InDelta(t, 2.0/3.0, snap.HitRate, 1e-9)
	assert.InDelta(t, 0.004, snap.EstimatedSavingsUSD, 1e-9)
	assert.Equal(t, int64(2), snap.HitsByModel["gpt-4o"])
}

func TestRequestTrackerActiveAndCompletedCounts(t *testing.T) {
	tr := metrics.NewRequestTracker()
	tr.Begin("req-1")
	tr.Begin("req-2")

	tr.Complete(metrics.CompletedRequest{
		RequestID: "req-1",
		Provider:  "openai",
		Model:     "gpt-4o",
		CostUSD:   0.01,
		LatencyMs: 120,
		Timestamp: time.Now(),
	})

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.ActiveRequests)
	assert.Equal(t, 1, snap.CompletedTotal)
	assert.Equal(t, 1, snap.ByProvider["openai"])
}

func TestRequestTrackerLatencyPercentiles(t *testing.T) {
	tr := metrics.NewRequestTracker()
	for i := 1; i <= 100; i++ {
		tr.Complete(metrics.CompletedRequest{
			RequestID: string(rune(i)),
			Provider:  "openai",
			Model:     "gpt-4o",
			LatencyMs: float64(i),
			Timestamp: time.Now(),
		})
	}

	snap := tr.Snapshot()
	assert.InDelta(t, 50, snap.LatencyPercentiles.P50, 5)
	assert.InDelta(t, 95, snap.LatencyPercentiles.P95, 5)
}

func TestRequestTrackerRingBoundedAt10000(t *testing.T) {
	tr := metrics.NewRequestTracker()
	for i := 0; i < 10005; i++ {
		tr.Complete(metrics.CompletedRequest{RequestID: "r", Timestamp: time.Now()})
	}
	snap := tr.Snapshot()
	require.Equal(t, 10000, snap.CompletedTotal)
}

func TestNewRegistryRegistersCollectorsWithoutPanicking(t *testing.T) {
	require.NotPanics(t, func() {
		reg := metrics.NewRegistry()
		reg.RecordRequest("openai", "gpt-4o", "200", "balanced", 0.5, 100, 50, 0.01)
		reg.RecordCacheHit()
		reg.SetBreakerState("openai", 0)
	})
}
