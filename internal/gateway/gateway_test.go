package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/breaker"
	"github.com/relaymesh/gateway/internal/budget"
	"github.com/relaymesh/gateway/internal/cache"
	"github.com/relaymesh/gateway/internal/capability"
	"github.com/relaymesh/gateway/internal/config"
	"github.com/relaymesh/gateway/internal/embedding"
	"github.com/relaymesh/gateway/internal/fallback"
	"github.com/relaymesh/gateway/internal/gateway"
	"github.com/relaymesh/gateway/internal/metrics"
	"github.com/relaymesh/gateway/internal/persistence"
	"github.com/relaymesh/gateway/internal/provider"
	"github.com/relaymesh/gateway/internal/routing"
)

type fakeAdapter struct {
	name    string
	fail    bool
	healthy bool
	content string
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResult, error) {
	if f.fail {
		return nil, &provider.Error{Kind: provider.ErrServer5xx, Message: "upstream failure"}
	}
	content := f.content
	if content == "" {
		content = "hello from " + f.name
	}
	return &provider.ChatResult{
		Content:      content,
		FinishReason: "stop",
		Usage:        provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model:        req.Model,
	}, nil
}
func (f *fakeAdapter) ChatStream(ctx context.Context, req *provider.ChatRequest) (provider.Stream, error) {
	return nil, nil
}
func (f *fakeAdapter) ListModels() []provider.ModelInfo {
	return []provider.ModelInfo{{ID: f.name + "-model", Object: "model", OwnedBy: f.name, Provider: f.name}}
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	return provider.HealthStatus{Healthy: f.healthy}
}
func (f *fakeAdapter) EstimateCost(req *provider.ChatRequest) provider.CostEstimate {
	return provider.CostEstimate{EstimatedCostUSD: 0.002}
}

// testServer wires a minimal but complete Server against an in-memory
// miniredis instance and fake provider adapters, mirroring the way the
// teacher's router tests build a registry + config by hand.
func testServer(t *testing.T, adapters ...*fakeAdapter) (*gateway.Server, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	reg := provider.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	reg.HealthCheckAll(context.Background())

	caps := capability.NewMap()
	breakers := breaker.NewManager(breaker.DefaultConfig())
	routingCfg := routing.Config{DefaultStrategy: routing.Balanced, FallbackChain: adapterNames(adapters)}
	router := routing.New(reg, caps, routingCfg)
	chain := fallback.New(reg, breakers, func(string) time.Duration { return 5 * time.Second })

	embedder := embedding.New("", "", nil)
	semanticCache := cache.New(rdb, embedder, cache.DefaultConfig(), zerolog.Nop())

	cfg := &config.Config{
		Addr: ":0", Env: "test", APIKeyHeader: "Authorization",
		MaxBodyBytes: 1 << 20, AdminKey: "admin-secret",
	}

	srv := gateway.New(gateway.Deps{
		Config: cfg, Logger: zerolog.New(io.Discard), Registry: reg, Caps: caps,
		Router: router, RoutingCfg: routingCfg, Fallback: chain, Breakers: breakers,
		Cache: semanticCache, CacheStats: metrics.NewCacheStats(), Embedder: embedder,
		Tracker: metrics.NewRequestTracker(), Metrics: metrics.NewRegistry(),
		Enforcer: budget.NewEnforcer(nil, nil), KeyStore: budget.NewStore("test"), RateLimiter: budget.NewRateLimiter(rdb),
		AsyncLogger: persistence.NewAsyncLogger(persistence.NewMemoryWriter(100), 100, 0),
	})
	return srv, rdb
}

func adapterNames(adapters []*fakeAdapter) []string {
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.name
	}
	return names
}

func TestHealthReturns503WhenNoProviderHealthy(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: false})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusServiceUnavailable, rw.Result().StatusCode)
}

func TestHealthReturns200WhenAProviderIsHealthy(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
}

func TestAnonymousRequestToModelsIsAllowed(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
}

func TestUnknownAPIKeyIsRejected(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-key")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Result().StatusCode)
}

func TestAdminRoutesRequireAdminKey(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/keys", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	require.Equal(t, http.StatusUnauthorized, rw.Result().StatusCode)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"is_admin": true})
	signed, err := token.SignedString([]byte("admin-secret"))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Result().StatusCode)
}

func TestAdminRoutesRejectNonAdminToken(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"is_admin": false})
	signed, err := token.SignedString([]byte("admin-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	require.Equal(t, http.StatusUnauthorized, rw.Result().StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.NotEmpty(t, rw.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatCompletionsHappyPath(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true, content: "42"})
	r := gateway.NewRouter(srv)

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "openai-model",
		"messages": []map[string]string{{"role": "user", "content": "what is 6*7?"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&decoded))
	require.Contains(t, decoded, "x-gateway")
	choices := decoded["choices"].([]interface{})
	require.Len(t, choices, 1)
}

func TestChatCompletionsRejectsEmptyMessages(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	body, _ := json.Marshal(map[string]interface{}{"model": "openai-model", "messages": []map[string]string{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusBadRequest, rw.Result().StatusCode)
}

func TestChatCompletionsFallsBackOnPrimaryFailure(t *testing.T) {
	srv, _ := testServer(t,
		&fakeAdapter{name: "openai", healthy: true, fail: true},
		&fakeAdapter{name: "groq", healthy: true, content: "from groq"},
	)
	r := gateway.NewRouter(srv)

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "openai-model",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&decoded))
	meta := decoded["x-gateway"].(map[string]interface{})
	require.Equal(t, "groq", meta["provider"])
	require.Equal(t, true, meta["fallback_used"])
}

func TestEmbeddingsReturnsOneVectorPerInput(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	body, _ := json.Marshal(map[string]interface{}{
		"model": "nomic-embed-text",
		"input": []string{"hello", "world"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/embeddings", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Result().StatusCode)

	var decoded provider.EmbeddingsResponse
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&decoded))
	require.Len(t, decoded.Data, 2)
	require.NotEmpty(t, decoded.Data[0].Embedding)
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := testServer(t, &fakeAdapter{name: "openai", healthy: true})
	r := gateway.NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options"} {
		require.NotEmpty(t, rw.Header().Get(h))
	}
}
