// Package config loads gateway configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the gateway needs at process start.
type Config struct {
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	RedisURL      string
	DatabaseURL   string
	EmbeddingURL  string
	EmbeddingModel string

	AdminKey     string
	APIKeyHeader string

	DefaultRoutingStrategy string
	PreferLocal            bool

	CacheEnabled             bool
	CacheSimilarityThreshold float64
	CacheTTLSeconds          int
	CacheMaxEntries          int

	GlobalMonthlyTokenBudget int64
	GlobalMonthlyCostBudget  float64

	MaxBodyBytes int64
	LogLevel     string

	HealthCheckInterval time.Duration
	LogFlushInterval    time.Duration

	ProviderTimeouts map[string]time.Duration
	DefaultTimeout   time.Duration

	Providers map[string]ProviderConfig
}

// ProviderConfig is the per-vendor wiring: base URL and credential.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// Load reads configuration from the environment and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 10)
	defaultTimeoutSec := getEnvInt("GATEWAY_DEFAULT_TIMEOUT_SEC", 60)

	cfg := &Config{
		Addr:            getEnv("GATEWAY_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		EmbeddingURL:   getEnv("OLLAMA_URL", "http://localhost:11434"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "nomic-embed-text"),

		AdminKey:     getEnv("GATEWAY_ADMIN_KEY", ""),
		APIKeyHeader: getEnv("API_KEY_HEADER", "Authorization"),

		DefaultRoutingStrategy: getEnv("DEFAULT_ROUTING_STRATEGY", "balanced"),
		PreferLocal:            getEnvBool("PREFER_LOCAL", false),

		CacheEnabled:             getEnvBool("CACHE_ENABLED", true),
		CacheSimilarityThreshold: getEnvFloat("CACHE_SIMILARITY_THRESHOLD", 0.95),
		CacheTTLSeconds:          getEnvInt("CACHE_TTL_SECONDS", 3600),
		CacheMaxEntries:          getEnvInt("CACHE_MAX_ENTRIES", 10_000),

		GlobalMonthlyTokenBudget: int64(getEnvInt("GLOBAL_MONTHLY_TOKEN_BUDGET", 0)),
		GlobalMonthlyCostBudget:  getEnvFloat("GLOBAL_MONTHLY_COST_BUDGET_USD", 0),

		MaxBodyBytes: int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024)),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		HealthCheckInterval: time.Duration(getEnvInt("HEALTH_CHECK_INTERVAL_SEC", 30)) * time.Second,
		LogFlushInterval:    time.Duration(getEnvInt("LOG_FLUSH_INTERVAL_SEC", 5)) * time.Second,

		DefaultTimeout: time.Duration(defaultTimeoutSec) * time.Second,
		ProviderTimeouts: map[string]time.Duration{
			"openai":    time.Duration(getEnvInt("PROVIDER_TIMEOUT_OPENAI_SEC", 60)) * time.Second,
			"anthropic": time.Duration(getEnvInt("PROVIDER_TIMEOUT_ANTHROPIC_SEC", 60)) * time.Second,
			"groq":      time.Duration(getEnvInt("PROVIDER_TIMEOUT_GROQ_SEC", 30)) * time.Second,
			"together":  time.Duration(getEnvInt("PROVIDER_TIMEOUT_TOGETHER_SEC", 60)) * time.Second,
			"ollama":    time.Duration(getEnvInt("PROVIDER_TIMEOUT_OLLAMA_SEC", 120)) * time.Second,
		},

		Providers: map[string]ProviderConfig{
			"openai":    {APIKey: getEnv("OPENAI_API_KEY", ""), BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")},
			"anthropic": {APIKey: getEnv("ANTHROPIC_API_KEY", ""), BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1")},
			"groq":      {APIKey: getEnv("GROQ_API_KEY", ""), BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1")},
			"together":  {APIKey: getEnv("TOGETHER_API_KEY", ""), BaseURL: getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1")},
			"ollama":    {APIKey: "local", BaseURL: getEnv("OLLAMA_URL", "http://localhost:11434")},
		},
	}
	return cfg
}

// IsDevelopment reports whether the configured environment is "development".
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ProviderTimeout returns the configured completion timeout for a provider,
// falling back to DefaultTimeout when unset.
func (c *Config) ProviderTimeout(provider string) time.Duration {
	if t, ok := c.ProviderTimeouts[provider]; ok {
		return t
	}
	return c.DefaultTimeout
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// SplitCSV splits a comma-separated env value into a trimmed, non-empty slice.
func SplitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
