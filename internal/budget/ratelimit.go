package budget

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rpmWindow = 60 * time.Second
	tpmWindow = 60 * time.Second
)

// LimitResult is what a rate-limit check returns. ResetSeconds is the
// ceiling of the time until the window's oldest entry ages out, per
// spec.md §4.10's X-RateLimit-Reset contract.
type LimitResult struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds int
	RetryAfterMs int64
}

// ceilSeconds converts a millisecond duration to whole seconds, rounding up.
func ceilSeconds(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int(math.Ceil(float64(ms) / 1000))
}

// RateLimiter implements the sliding-window RPM/TPM limiter backed by a
// Redis sorted set per (key, dimension), per spec.md §4.10.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter builds a RateLimiter.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

func rpmKey(apiKeyID string) string { return "ratelimit:rpm:" + apiKeyID }
func tpmKey(apiKeyID string) string { return "ratelimit:tpm:" + apiKeyID }

func randomSuffix() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// CheckRPM enforces a requests-per-minute cap for apiKeyID.
func (r *RateLimiter) CheckRPM(ctx context.Context, apiKeyID string, max int) (LimitResult, error) {
	key := rpmKey(apiKeyID)
	now := time.Now()
	nowMs := float64(now.UnixMilli())
	windowStart := nowMs - float64(rpmWindow.Milliseconds())

	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.ZAdd(ctx, key, redis.Z{Score: nowMs, Member: fmt.Sprintf("%d-%s", now.UnixNano(), randomSuffix())})
	pipe.Expire(ctx, key, rpmWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return LimitResult{}, err
	}

	countBeforeAdd := int(countCmd.Val())
	resetMs := rpmWindow.Milliseconds()
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetMs = int64(oldest[0].Score) + rpmWindow.Milliseconds() - now.UnixMilli()
	}
	resetSeconds := ceilSeconds(resetMs)

	if countBeforeAdd >= max {
		return LimitResult{Allowed: false, Limit: max, ResetSeconds: resetSeconds, RetryAfterMs: resetMs}, nil
	}

	return LimitResult{Allowed: true, Limit: max, Remaining: max - countBeforeAdd - 1, ResetSeconds: resetSeconds}, nil
}

// CheckTPM enforces a tokens-per-minute cap. Each sorted-set member encodes
// its token count as a "{tokens}:{now}-{rand}" string so the sum of the
// window's members approximates token throughput.
func (r *RateLimiter) CheckTPM(ctx context.Context, apiKeyID string, tokens int, max int) (LimitResult, error) {
	key := tpmKey(apiKeyID)
	now := time.Now()
	nowMs := float64(now.UnixMilli())
	windowStart := nowMs - float64(tpmWindow.Milliseconds())

	if err := r.rdb.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", windowStart)).Err(); err != nil {
		return LimitResult{}, err
	}

	membersWithScores, err := r.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return LimitResult{}, err
	}

	sum := 0
	for _, m := range membersWithScores {
		sum += tokenPrefixOf(fmt.Sprint(m.Member))
	}

	resetMs := tpmWindow.Milliseconds()
	if len(membersWithScores) > 0 {
		resetMs = int64(membersWithScores[0].Score) + tpmWindow.Milliseconds() - now.UnixMilli()
	}
	resetSeconds := ceilSeconds(resetMs)

	if sum+tokens > max {
		return LimitResult{Allowed: false, Limit: max, ResetSeconds: resetSeconds, RetryAfterMs: resetMs}, nil
	}

	member := fmt.Sprintf("%d:%d-%s", tokens, now.UnixNano(), randomSuffix())
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: nowMs, Member: member})
	pipe.Expire(ctx, key, tpmWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return LimitResult{}, err
	}

	return LimitResult{Allowed: true, Limit: max, Remaining: max - sum - tokens, ResetSeconds: resetSeconds}, nil
}

func tokenPrefixOf(member string) int {
	idx := strings.Index(member, ":")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(member[:idx])
	if err != nil {
		return 0
	}
	return n
}
