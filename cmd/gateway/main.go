// Command gateway runs the LLM API gateway: provider adapters behind a
// weighted router, a semantic response cache, budget/rate-limit
// enforcement, and Prometheus metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/relaymesh/gateway/internal/breaker"
	"github.com/relaymesh/gateway/internal/budget"
	"github.com/relaymesh/gateway/internal/cache"
	"github.com/relaymesh/gateway/internal/capability"
	"github.com/relaymesh/gateway/internal/config"
	"github.com/relaymesh/gateway/internal/embedding"
	"github.com/relaymesh/gateway/internal/fallback"
	"github.com/relaymesh/gateway/internal/gateway"
	"github.com/relaymesh/gateway/internal/logging"
	"github.com/relaymesh/gateway/internal/metrics"
	"github.com/relaymesh/gateway/internal/persistence"
	"github.com/relaymesh/gateway/internal/provider"
	"github.com/relaymesh/gateway/internal/routing"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg)

	rdb := redis.NewClient(mustParseRedisOptions(cfg.RedisURL))
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup; continuing, calls will fail-open or fail-closed per component")
	}

	registry := provider.NewRegistry()
	registerProviders(registry, cfg, log)

	caps := capability.NewMap()
	breakers := breaker.NewManager(breaker.DefaultConfig())
	routingCfg := routing.Config{
		DefaultStrategy: routing.ParseStrategy(cfg.DefaultRoutingStrategy),
		PreferLocal:     cfg.PreferLocal,
		FallbackChain:   []string{"openai", "anthropic", "groq", "together", "ollama"},
	}
	router := routing.New(registry, caps, routingCfg)
	fallbackChain := fallback.New(registry, breakers, cfg.ProviderTimeout)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	embedder := embedding.New(cfg.EmbeddingURL, cfg.EmbeddingModel, httpClient)

	semanticCache := cache.New(rdb, embedder, cache.Config{
		Enabled:             cfg.CacheEnabled,
		SimilarityThreshold: cfg.CacheSimilarityThreshold,
		TTL:                 time.Duration(cfg.CacheTTLSeconds) * time.Second,
		MaxEntries:          cfg.CacheMaxEntries,
	}, log)
	cacheStats := metrics.NewCacheStats()
	tracker := metrics.NewRequestTracker()
	metricsRegistry := metrics.NewRegistry()

	var globalTokenBudget *int64
	if cfg.GlobalMonthlyTokenBudget > 0 {
		globalTokenBudget = &cfg.GlobalMonthlyTokenBudget
	}
	var globalCostBudget *float64
	if cfg.GlobalMonthlyCostBudget > 0 {
		globalCostBudget = &cfg.GlobalMonthlyCostBudget
	}
	enforcer := budget.NewEnforcer(globalTokenBudget, globalCostBudget)
	keyStore := budget.NewStore(cfg.Env)
	rateLimiter := budget.NewRateLimiter(rdb)

	logWriter := persistence.NewMemoryWriter(10000)
	asyncLogger := persistence.NewAsyncLogger(logWriter, 10000, cfg.LogFlushInterval)

	srv := gateway.New(gateway.Deps{
		Config: cfg, Logger: log, Registry: registry, Caps: caps,
		Router: router, RoutingCfg: routingCfg, Fallback: fallbackChain, Breakers: breakers,
		Cache: semanticCache, CacheStats: cacheStats, Embedder: embedder,
		Tracker: tracker, Metrics: metricsRegistry,
		Enforcer: enforcer, KeyStore: keyStore, RateLimiter: rateLimiter,
		AsyncLogger: asyncLogger,
	})

	poller := provider.NewHealthPoller(registry, log, cfg.HealthCheckInterval)
	poller.OnStatusChange(func(name string, healthy bool, status provider.HealthStatus) {
		value := breaker.GaugeValue(breaker.Closed)
		if !healthy {
			value = breaker.GaugeValue(breaker.Open)
		}
		metricsRegistry.SetBreakerState(name, value)
	})
	poller.Start()

	breakerGaugeTicker := time.NewTicker(15 * time.Second)
	breakerGaugeDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-breakerGaugeTicker.C:
				for _, a := range registry.GetAll() {
					metricsRegistry.SetBreakerState(a.Name(), breaker.GaugeValue(breakers.GetState(a.Name())))
				}
			case <-breakerGaugeDone:
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: gateway.NewRouter(srv),
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("llm gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	close(breakerGaugeDone)
	breakerGaugeTicker.Stop()
	poller.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	asyncLogger.Close()
	_ = rdb.Close()
}

// registerProviders wires one adapter per vendor whose API key is
// configured; ollama never requires a credential so it always registers.
func registerProviders(registry *provider.Registry, cfg *config.Config, log zerolog.Logger) {
	if pc := cfg.Providers["openai"]; pc.APIKey != "" {
		registry.Register(provider.NewOpenAI(pc.BaseURL, pc.APIKey))
	}
	if pc := cfg.Providers["anthropic"]; pc.APIKey != "" {
		registry.Register(provider.NewAnthropic(pc.BaseURL, pc.APIKey))
	}
	if pc := cfg.Providers["groq"]; pc.APIKey != "" {
		registry.Register(provider.NewGroq(pc.BaseURL, pc.APIKey))
	}
	if pc := cfg.Providers["together"]; pc.APIKey != "" {
		registry.Register(provider.NewTogether(pc.BaseURL, pc.APIKey))
	}
	registry.Register(provider.NewOllama(cfg.Providers["ollama"].BaseURL))
	log.Info().Int("providers", len(registry.GetAll())).Msg("providers registered")
}

func mustParseRedisOptions(url string) *redis.Options {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return &redis.Options{Addr: "localhost:6379"}
	}
	return opts
}
