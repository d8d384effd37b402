// Package metrics exposes the gateway's Prometheus instrumentation plus
// the in-process cache and request-tracking accumulators the admin API
// surfaces as JSON.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// latencyBuckets are the histogram boundaries named for request duration.
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Registry wraps the Prometheus collectors the request pipeline updates.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	TokensTotal     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CostTotal       *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	BreakerState    *prometheus.GaugeVec
}

// NewRegistry builds and registers every collector the gateway emits.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total chat completion requests handled.",
		}, []string{"provider", "model", "status", "strategy"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"direction", "provider", "model"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request latency in seconds.",
			Buckets: latencyBuckets,
		}, []string{"provider", "model", "status", "strategy"}),
		CostTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cost_usd_total",
			Help: "Estimated cost in USD.",
		}, []string{"provider", "model"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Semantic cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Semantic cache misses.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.TokensTotal,
		r.RequestDuration,
		r.CostTotal,
		r.CacheHits,
		r.CacheMisses,
		r.BreakerState,
	)

	return r
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordRequest observes a completed request across the counter, token,
// duration, and cost collectors in one call.
func (r *Registry) RecordRequest(provider, model, status, strategy string, latencySeconds float64, promptTokens, completionTokens int64, costUSD float64) {
	r.RequestsTotal.WithLabelValues(provider, model, status, strategy).Inc()
	r.RequestDuration.WithLabelValues(provider, model, status, strategy).Observe(latencySeconds)
	r.TokensTotal.WithLabelValues("input", provider, model).Add(float64(promptTokens))
	r.TokensTotal.WithLabelValues("output", provider, model).Add(float64(completionTokens))
	r.CostTotal.WithLabelValues(provider, model).Add(costUSD)
}

// RecordCacheHit/RecordCacheMiss update the cache counters.
func (r *Registry) RecordCacheHit()  { r.CacheHits.Inc() }
func (r *Registry) RecordCacheMiss() { r.CacheMisses.Inc() }

// SetBreakerState publishes a provider's breaker state as a gauge value.
func (r *Registry) SetBreakerState(provider string, value float64) {
	r.BreakerState.WithLabelValues(provider).Set(value)
}
