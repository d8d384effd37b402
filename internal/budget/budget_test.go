package budget_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/budget"
)

func TestCreateMintsOpaqueIDWithEnvPrefix(t *testing.T) {
	store := budget.NewStore("prod")
	rec := store.Create(budget.CreateOptions{Name: "default"})
	assert.True(t, rec.Enabled)
	assert.Contains(t, rec.ID, "gw-prod-")
}

func TestValidateRejectsUnknownOrRevokedKey(t *testing.T) {
	store := budget.NewStore("prod")
	rec := store.Create(budget.CreateOptions{Name: "a"})

	_, ok := store.Validate("does-not-exist")
	assert.False(t, ok)

	store.Revoke(rec.ID)
	_, ok = store.Validate(rec.ID)
	assert.False(t, ok)
}

func TestRecordUsageAccumulates(t *testing.T) {
	store := budget.NewStore("prod")
	rec := store.Create(budget.CreateOptions{Name: "a"})
	store.RecordUsage(rec.ID, 100, 0.05)
	store.RecordUsage(rec.ID, 50, 0.02)

	got, ok := store.Validate(rec.ID)
	require.True(t, ok)
	assert.Equal(t, int64(150), got.TokensUsedThisMonth)
	assert.InDelta(t, 0.07, got.CostUsedThisMonthUSD, 1e-9)
}

func TestListReturnsCreationOrder(t *testing.T) {
	store := budget.NewStore("prod")
	a := store.Create(budget.CreateOptions{Name: "a"})
	b := store.Create(budget.CreateOptions{Name: "b"})

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestEnforcerDeniesOverTokenBudget(t *testing.T) {
	budgetTokens := int64(100)
	rec := &budget.ApiKeyRecord{MonthlyTokenBudget: &budgetTokens, TokensUsedThisMonth: 100}
	e := budget.NewEnforcer(nil, nil)

	result := e.CheckBudget(rec)
	assert.False(t, result.Allowed)
	assert.Equal(t, "monthly token budget exceeded", result.Reason)
}

func TestEnforcerAlertThresholdAt95(t *testing.T) {
	budgetTokens := int64(100)
	rec := &budget.ApiKeyRecord{MonthlyTokenBudget: &budgetTokens, TokensUsedThisMonth: 96}
	e := budget.NewEnforcer(nil, nil)

	result := e.CheckBudget(rec)
	require.NotNil(t, result.AlertThreshold)
	assert.Equal(t, 95, *result.AlertThreshold)
}

func TestEnforcerAllowsWithinBudget(t *testing.T) {
	budgetTokens := int64(1000)
	rec := &budget.ApiKeyRecord{MonthlyTokenBudget: &budgetTokens, TokensUsedThisMonth: 10}
	e := budget.NewEnforcer(nil, nil)

	result := e.CheckBudget(rec)
	assert.True(t, result.Allowed)
	assert.Nil(t, result.AlertThreshold)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRateLimiterRPMDeniesOverCap(t *testing.T) {
	rdb := newTestRedis(t)
	rl := budget.NewRateLimiter(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := rl.CheckRPM(ctx, "key-1", 3)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := rl.CheckRPM(ctx, "key-1", 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfterMs, int64(0))
}

func TestRateLimiterTPMDeniesWhenSumExceedsMax(t *testing.T) {
	rdb := newTestRedis(t)
	rl := budget.NewRateLimiter(rdb)
	ctx := context.Background()

	result, err := rl.CheckTPM(ctx, "key-1", 800, 1000)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = rl.CheckTPM(ctx, "key-1", 300, 1000)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}
