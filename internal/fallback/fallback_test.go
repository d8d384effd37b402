package fallback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/breaker"
	"github.com/relaymesh/gateway/internal/fallback"
	"github.com/relaymesh/gateway/internal/provider"
)

type fakeAdapter struct {
	name    string
	fail    bool
	healthy bool
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResult, error) {
	if f.fail {
		return nil, errors.New("upstream 500")
	}
	return &provider.ChatResult{Content: "ok from " + f.name}, nil
}
func (f *fakeAdapter) ChatStream(ctx context.Context, req *provider.ChatRequest) (provider.Stream, error) {
	return nil, nil
}
func (f *fakeAdapter) ListModels() []provider.ModelInfo { return nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	return provider.HealthStatus{Healthy: f.healthy}
}
func (f *fakeAdapter) EstimateCost(req *provider.ChatRequest) provider.CostEstimate {
	return provider.CostEstimate{}
}

func registryWith(adapters ...*fakeAdapter) *provider.Registry {
	reg := provider.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	reg.HealthCheckAll(context.Background())
	return reg
}

func fixedTimeout(d time.Duration) fallback.TimeoutFor {
	return func(string) time.Duration { return d }
}

func TestPrimarySuccessNoFallback(t *testing.T) {
	reg := registryWith(&fakeAdapter{name: "openai", healthy: true})
	mgr := breaker.NewManager(breaker.DefaultConfig())
	chain := fallback.New(reg, mgr, fixedTimeout(time.Second))

	result, err := chain.Execute(context.Background(), &provider.ChatRequest{}, "openai", []string{"openai"})
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.False(t, result.FallbackUsed)
	assert.Len(t, result.Attempts, 1)
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	reg := registryWith(
		&fakeAdapter{name: "openai", fail: true, healthy: true},
		&fakeAdapter{name: "groq", healthy: true},
	)
	mgr := breaker.NewManager(breaker.DefaultConfig())
	chain := fallback.New(reg, mgr, fixedTimeout(time.Second))

	result, err := chain.Execute(context.Background(), &provider.ChatRequest{}, "openai", []string{"openai", "groq"})
	require.NoError(t, err)
	assert.Equal(t, "groq", result.Provider)
	assert.True(t, result.FallbackUsed)
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, 1, mgr.Snapshot("openai").FailureCount)
}

func TestAllProvidersFailedCollectsAttempts(t *testing.T) {
	reg := registryWith(
		&fakeAdapter{name: "openai", fail: true, healthy: true},
		&fakeAdapter{name: "groq", fail: true, healthy: true},
	)
	mgr := breaker.NewManager(breaker.DefaultConfig())
	chain := fallback.New(reg, mgr, fixedTimeout(time.Second))

	_, err := chain.Execute(context.Background(), &provider.ChatRequest{}, "openai", []string{"openai", "groq"})
	require.Error(t, err)
	var allFailed *fallback.ErrAllProvidersFailed
	require.ErrorAs(t, err, &allFailed)
	assert.NotEmpty(t, allFailed.Attempts)
	assert.Equal(t, "openai", allFailed.Attempts[0].ProviderID)
}

func TestSkipsUnhealthyFallback(t *testing.T) {
	reg := registryWith(
		&fakeAdapter{name: "openai", fail: true, healthy: true},
		&fakeAdapter{name: "groq", healthy: false},
	)
	mgr := breaker.NewManager(breaker.DefaultConfig())
	chain := fallback.New(reg, mgr, fixedTimeout(time.Second))

	_, err := chain.Execute(context.Background(), &provider.ChatRequest{}, "openai", []string{"openai", "groq"})
	require.Error(t, err)
}
