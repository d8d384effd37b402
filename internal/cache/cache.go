// Package cache implements the semantic response cache: embeddings keyed
// by prompt similarity, backed by an external key-value store so multiple
// gateway instances share one cache.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/relaymesh/gateway/internal/embedding"
)

// Config holds the cache's tunables.
type Config struct {
	Enabled             bool
	SimilarityThreshold float64
	TTL                 time.Duration
	MaxEntries          int
}

// DefaultConfig returns the defaults named in the gateway's cache spec.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		SimilarityThreshold: 0.95,
		TTL:                 3600 * time.Second,
		MaxEntries:          10000,
	}
}

var virtualModels = map[string]bool{"auto": true, "fast": true, "cheap": true, "quality": true}

// Entry is one cached prompt/response pair.
type Entry struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Model     string          `json:"model"`
	Embedding []float64       `json:"embedding"`
	Response  json.RawMessage `json:"response"`
	Timestamp int64           `json:"timestamp"`
	HitCount  int64           `json:"hit_count"`
}

// LookupResult is what Lookup returns on a hit.
type LookupResult struct {
	Hit        bool
	Entry      *Entry
	Similarity float64
}

// Stats is the cache's own size/configuration snapshot (distinct from the
// hit/miss counters tracked in package metrics).
type Stats struct {
	TotalEntries int     `json:"total_entries"`
	Enabled      bool    `json:"enabled"`
	Threshold    float64 `json:"threshold"`
	TTLSeconds   int     `json:"ttl_seconds"`
}

// Embedder generates a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) []float64
}

// Cache is the semantic cache engine, backed by Redis.
type Cache struct {
	rdb    *redis.Client
	embed  Embedder
	cfg    Config
	logger zerolog.Logger
	prefix string
}

// New builds a Cache.
func New(rdb *redis.Client, embed Embedder, cfg Config, logger zerolog.Logger) *Cache {
	return &Cache{
		rdb:    rdb,
		embed:  embed,
		cfg:    cfg,
		logger: logger.With().Str("component", "semantic_cache").Logger(),
		prefix: "cache:",
	}
}

func (c *Cache) entryKey(id string) string { return c.prefix + "entry:" + id }
func (c *Cache) liveKey() string           { return c.prefix + "live" }

// Lookup embeds query, scans every live entry, and returns the best match
// at or above the similarity threshold. Cache errors never propagate to
// the caller: any storage failure is logged and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, query, requestedModel string) *LookupResult {
	if !c.cfg.Enabled {
		return &LookupResult{Hit: false}
	}

	vec := c.embed.Embed(ctx, query)

	ids, err := c.rdb.ZRevRange(ctx, c.liveKey(), 0, -1).Result()
	if err != nil {
		c.logger.Debug().Err(err).Msg("cache lookup: failed to list live entries")
		return &LookupResult{Hit: false}
	}

	var best *Entry
	var bestSim float64

	for _, id := range ids {
		raw, err := c.rdb.Get(ctx, c.entryKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			c.logger.Debug().Err(err).Str("entry_id", id).Msg("cache lookup: failed to read entry")
			continue
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}

		if !virtualModels[requestedModel] && entry.Model != requestedModel {
			continue
		}

		sim := embedding.CosineSimilarity(vec, entry.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = &entry
		}
	}

	if best == nil || bestSim < c.cfg.SimilarityThreshold {
		return &LookupResult{Hit: false, Similarity: bestSim}
	}

	best.HitCount++
	if raw, err := json.Marshal(best); err == nil {
		if err := c.rdb.Set(ctx, c.entryKey(best.ID), raw, c.cfg.TTL).Err(); err != nil {
			c.logger.Debug().Err(err).Str("entry_id", best.ID).Msg("cache lookup: failed to refresh TTL")
		}
	}

	return &LookupResult{Hit: true, Entry: best, Similarity: bestSim}
}

// Store embeds query and writes a fresh entry, evicting the oldest entries
// by timestamp if the namespace would exceed MaxEntries.
func (c *Cache) Store(ctx context.Context, query, model string, response json.RawMessage) {
	if !c.cfg.Enabled {
		return
	}

	vec := c.embed.Embed(ctx, query)
	now := time.Now()
	entry := Entry{
		ID:        uuid.NewString(),
		Query:     query,
		Model:     model,
		Embedding: vec,
		Response:  response,
		Timestamp: now.Unix(),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Debug().Err(err).Msg("cache store: failed to marshal entry")
		return
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.entryKey(entry.ID), raw, c.cfg.TTL)
	pipe.ZAdd(ctx, c.liveKey(), redis.Z{Score: float64(now.Unix()), Member: entry.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("cache store: failed to write entry")
		return
	}

	c.evictOverCapacity(ctx)
}

func (c *Cache) evictOverCapacity(ctx context.Context) {
	count, err := c.rdb.ZCard(ctx, c.liveKey()).Result()
	if err != nil || int(count) <= c.cfg.MaxEntries {
		return
	}

	excess := int(count) - c.cfg.MaxEntries
	oldest, err := c.rdb.ZRange(ctx, c.liveKey(), 0, int64(excess)-1).Result()
	if err != nil {
		return
	}

	for _, id := range oldest {
		c.rdb.Del(ctx, c.entryKey(id))
	}
	if len(oldest) > 0 {
		members := make([]interface{}, len(oldest))
		for i, id := range oldest {
			members[i] = id
		}
		c.rdb.ZRem(ctx, c.liveKey(), members...)
	}
}

// Invalidate removes entries whose query or model contains pattern; an
// empty pattern drops the entire live set.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	ids, err := c.rdb.ZRange(ctx, c.liveKey(), 0, -1).Result()
	if err != nil {
		return 0
	}

	if pattern == "" {
		for _, id := range ids {
			c.rdb.Del(ctx, c.entryKey(id))
		}
		c.rdb.Del(ctx, c.liveKey())
		return len(ids)
	}

	removed := 0
	for _, id := range ids {
		raw, err := c.rdb.Get(ctx, c.entryKey(id)).Bytes()
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if strings.Contains(entry.Query, pattern) || strings.Contains(entry.Model, pattern) {
			c.rdb.Del(ctx, c.entryKey(id))
			c.rdb.ZRem(ctx, c.liveKey(), id)
			removed++
		}
	}
	return removed
}

// GetStats returns the cache's size/configuration snapshot.
func (c *Cache) GetStats(ctx context.Context) Stats {
	count, _ := c.rdb.ZCard(ctx, c.liveKey()).Result()
	return Stats{
		TotalEntries: int(count),
		Enabled:      c.cfg.Enabled,
		Threshold:    c.cfg.SimilarityThreshold,
		TTLSeconds:   int(c.cfg.TTL.Seconds()),
	}
}

// ConcatMessages joins message contents with newlines, the text the
// handler passes to Lookup/Store as the cache key material (spec.md §4.11).
func ConcatMessages(contents []string) string {
	return strings.Join(contents, "\n")
}

// ShouldBypass reports whether request headers ask to skip the cache.
func ShouldBypass(headers map[string]string) bool {
	if v, ok := headers["X-Cache-Bypass"]; ok && strings.EqualFold(v, "true") {
		return true
	}
	if v, ok := headers["Cache-Control"]; ok && strings.Contains(strings.ToLower(v), "no-cache") {
		return true
	}
	return false
}
