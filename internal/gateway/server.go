// Package gateway assembles the provider registry, router, fallback chain,
// semantic cache, budget/rate-limit machinery, and metrics into the HTTP
// surface clients and operators talk to.
package gateway

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaymesh/gateway/internal/breaker"
	"github.com/relaymesh/gateway/internal/budget"
	"github.com/relaymesh/gateway/internal/cache"
	"github.com/relaymesh/gateway/internal/capability"
	"github.com/relaymesh/gateway/internal/config"
	"github.com/relaymesh/gateway/internal/embedding"
	"github.com/relaymesh/gateway/internal/fallback"
	"github.com/relaymesh/gateway/internal/metrics"
	"github.com/relaymesh/gateway/internal/persistence"
	"github.com/relaymesh/gateway/internal/provider"
	"github.com/relaymesh/gateway/internal/routing"
)

// Deps is every wired dependency New needs to build a Server. It exists
// as a plain value type (no embedded mutex) so callers in cmd/gateway can
// build it as an ordinary struct literal.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *provider.Registry
	Caps     *capability.Map

	Router     *routing.Router
	RoutingCfg routing.Config
	Fallback   *fallback.Chain
	Breakers   *breaker.Manager

	Cache      *cache.Cache
	CacheStats *metrics.CacheStats
	Embedder   *embedding.Service

	Tracker *metrics.RequestTracker
	Metrics *metrics.Registry

	Enforcer    *budget.Enforcer
	KeyStore    *budget.Store
	RateLimiter *budget.RateLimiter

	AsyncLogger *persistence.AsyncLogger
}

// Server holds every wired dependency the HTTP handlers need.
type Server struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *provider.Registry
	Caps     *capability.Map

	// routingMu guards router and routingCfg, which the admin routing
	// endpoint can replace at runtime while request handlers read them
	// concurrently.
	routingMu  sync.RWMutex
	router     *routing.Router
	routingCfg routing.Config

	Fallback *fallback.Chain
	Breakers *breaker.Manager

	Cache      *cache.Cache
	CacheStats *metrics.CacheStats
	Embedder   *embedding.Service

	Tracker *metrics.RequestTracker
	Metrics *metrics.Registry

	Enforcer    *budget.Enforcer
	KeyStore    *budget.Store
	RateLimiter *budget.RateLimiter

	AsyncLogger *persistence.AsyncLogger

	startedAt time.Time
}

// New builds a Server from a fully-wired Deps value.
func New(d Deps) *Server {
	return &Server{
		Config: d.Config, Logger: d.Logger, Registry: d.Registry, Caps: d.Caps,
		router: d.Router, routingCfg: d.RoutingCfg,
		Fallback: d.Fallback, Breakers: d.Breakers,
		Cache: d.Cache, CacheStats: d.CacheStats, Embedder: d.Embedder,
		Tracker: d.Tracker, Metrics: d.Metrics,
		Enforcer: d.Enforcer, KeyStore: d.KeyStore, RateLimiter: d.RateLimiter,
		AsyncLogger: d.AsyncLogger,
		startedAt:   time.Now(),
	}
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Router returns the currently active router.
func (s *Server) Router() *routing.Router {
	s.routingMu.RLock()
	defer s.routingMu.RUnlock()
	return s.router
}

// RoutingCfg returns a copy of the live routing configuration.
func (s *Server) RoutingCfg() routing.Config {
	s.routingMu.RLock()
	defer s.routingMu.RUnlock()
	return s.routingCfg
}

// SetRouting atomically replaces the router and its backing config, used
// by the admin routing endpoint to apply changes without a restart.
func (s *Server) SetRouting(router *routing.Router, cfg routing.Config) {
	s.routingMu.Lock()
	defer s.routingMu.Unlock()
	s.router = router
	s.routingCfg = cfg
}
