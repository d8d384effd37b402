package routing_test

import (
	"context"
	"testing"

	"github.com/relaymesh/gateway/internal/capability"
	"github.com/relaymesh/gateway/internal/provider"
)

type stubAdapter struct {
	name   string
	models []provider.ModelInfo
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResult, error) {
	return &provider.ChatResult{}, nil
}
func (s *stubAdapter) ChatStream(ctx context.Context, req *provider.ChatRequest) (provider.Stream, error) {
	return nil, nil
}
func (s *stubAdapter) ListModels() []provider.ModelInfo { return s.models }
func (s *stubAdapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	return provider.HealthStatus{Healthy: true}
}
func (s *stubAdapter) EstimateCost(req *provider.ChatRequest) provider.CostEstimate {
	return provider.CostEstimate{}
}

func newEmptyRegistry() *provider.Registry {
	return provider.NewRegistry()
}

// healthyRegistry registers a stub adapter per name, marks all healthy via
// one HealthCheckAll pass, and returns a fresh capability map alongside it.
func healthyRegistry(t *testing.T, names ...string) (*provider.Registry, *capability.Map) {
	t.Helper()
	reg := provider.NewRegistry()
	for _, name := range names {
		models := []provider.ModelInfo{}
		if name == "openai" {
			models = append(models, provider.ModelInfo{ID: "gpt-4o"})
		}
		reg.Register(&stubAdapter{name: name, models: models})
	}
	reg.HealthCheckAll(context.Background())
	return reg, capability.NewMap()
}
