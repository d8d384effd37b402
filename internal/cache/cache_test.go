package cache_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/cache"
	"github.com/relaymesh/gateway/internal/embedding"
)

type fallbackEmbedder struct{}

func (fallbackEmbedder) Embed(_ context.Context, text string) []float64 {
	return embedding.FallbackEmbed(text)
}

func newTestCache(t *testing.T, cfg cache.Config) (*cache.Cache, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return cache.New(rdb, fallbackEmbedder{}, cfg, zerolog.Nop()), rdb
}

func TestStoreThenLookupHitsOnIdenticalPrompt(t *testing.T) {
	c, _ := newTestCache(t, cache.DefaultConfig())
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "resp-1"})
	c.Store(ctx, "what is the capital of France", "gpt-4o", resp)

	result := c.Lookup(ctx, "what is the capital of France", "gpt-4o")
	require.True(t, result.Hit)
	require.Equal(t, int64(1), result.Entry.HitCount)
}

func TestLookupMissesOnDifferentModel(t *testing.T) {
	c, _ := newTestCache(t, cache.DefaultConfig())
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "resp-1"})
	c.Store(ctx, "translate hello to spanish", "gpt-4o", resp)

	result := c.Lookup(ctx, "translate hello to spanish", "claude-3-5-sonnet")
	require.False(t, result.Hit)
}

func TestLookupBypassesModelCheckForVirtualModel(t *testing.T) {
	c, _ := newTestCache(t, cache.DefaultConfig())
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "resp-1"})
	c.Store(ctx, "summarize this document", "gpt-4o", resp)

	result := c.Lookup(ctx, "summarize this document", "auto")
	require.True(t, result.Hit)
}

func TestInvalidateWithPatternRemovesMatchingEntries(t *testing.T) {
	c, _ := newTestCache(t, cache.DefaultConfig())
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "r"})
	c.Store(ctx, "weather in paris", "gpt-4o", resp)
	c.Store(ctx, "weather in london", "gpt-4o", resp)

	removed := c.Invalidate(ctx, "paris")
	require.Equal(t, 1, removed)
	require.Equal(t, 1, c.GetStats(ctx).TotalEntries)
}

func TestInvalidateWithoutPatternDropsEverything(t *testing.T) {
	c, _ := newTestCache(t, cache.DefaultConfig())
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "r"})
	c.Store(ctx, "one", "gpt-4o", resp)
	c.Store(ctx, "two", "gpt-4o", resp)

	c.Invalidate(ctx, "")
	require.Equal(t, 0, c.GetStats(ctx).TotalEntries)
}

func TestStoreEvictsOldestWhenOverCapacity(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.MaxEntries = 2
	c, _ := newTestCache(t, cfg)
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "r"})
	c.Store(ctx, "first prompt", "gpt-4o", resp)
	c.Store(ctx, "second prompt", "gpt-4o", resp)
	c.Store(ctx, "third prompt", "gpt-4o", resp)

	require.LessOrEqual(t, c.GetStats(ctx).TotalEntries, 2)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Enabled = false
	c, _ := newTestCache(t, cfg)
	ctx := context.Background()

	resp, _ := json.Marshal(map[string]string{"id": "r"})
	c.Store(ctx, "irrelevant", "gpt-4o", resp)

	result := c.Lookup(ctx, "irrelevant", "gpt-4o")
	require.False(t, result.Hit)
}

func TestConcatMessagesJoinsWithNewline(t *testing.T) {
	require.Equal(t, "a\nb\nc", cache.ConcatMessages([]string{"a", "b", "c"}))
}

func TestShouldBypassHonorsHeaders(t *testing.T) {
	require.True(t, cache.ShouldBypass(map[string]string{"X-Cache-Bypass": "true"}))
	require.True(t, cache.ShouldBypass(map[string]string{"Cache-Control": "no-cache"}))
	require.False(t, cache.ShouldBypass(map[string]string{}))
}
