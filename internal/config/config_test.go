package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/relaymesh/gateway/internal/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("REDIS_URL", "redis://localhost:6380")
	os.Setenv("ENV", "test")
	os.Setenv("CACHE_SIMILARITY_THRESHOLD", "0.9")
	defer func() {
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("ENV")
		os.Unsetenv("CACHE_SIMILARITY_THRESHOLD")
	}()

	cfg := config.Load()
	if cfg.RedisURL != "redis://localhost:6380" {
		t.Fatalf("expected REDIS_URL to be loaded, got %s", cfg.RedisURL)
	}
	if cfg.Env != "test" {
		t.Fatalf("expected ENV=test, got %s", cfg.Env)
	}
	if cfg.CacheSimilarityThreshold != 0.9 {
		t.Fatalf("expected similarity threshold 0.9, got %v", cfg.CacheSimilarityThreshold)
	}
}

func TestProviderTimeoutFallsBackToDefault(t *testing.T) {
	cfg := &config.Config{
		DefaultTimeout:   42,
		ProviderTimeouts: map[string]time.Duration{},
	}
	if got := cfg.ProviderTimeout("unknown"); got != 42 {
		t.Fatalf("expected default timeout, got %v", got)
	}
}
