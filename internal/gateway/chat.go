package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/relaymesh/gateway/internal/apierrors"
	"github.com/relaymesh/gateway/internal/cache"
	"github.com/relaymesh/gateway/internal/classifier"
	"github.com/relaymesh/gateway/internal/metrics"
	"github.com/relaymesh/gateway/internal/persistence"
	"github.com/relaymesh/gateway/internal/provider"
	"github.com/relaymesh/gateway/internal/routing"
)

// outcome accumulates everything the post-response accounting pass
// (tracker, metrics, async log) needs, filled in as the pipeline runs so
// the deferred accounting call sees a consistent picture however the
// request ends.
type outcome struct {
	provider     string
	model        string
	strategy     string
	costUSD      float64
	promptTokens int
	completionTokens int
	cacheHit     bool
	fallbackUsed bool
	statusCode   int
	errMsg       string
}

// applyHeaderExtensions resolves the gateway's request extensions. The
// decoded body (x-routing-strategy/x-prefer-provider/x-budget-key/x-cache)
// wins; the matching header is only consulted as a fallback for clients
// that still send it out-of-band, per spec.md §6.
func applyHeaderExtensions(req *provider.ChatRequest, r *http.Request) {
	if req.RoutingStrategy == "" {
		req.RoutingStrategy = r.Header.Get("X-Routing-Strategy")
	}
	if req.PreferProvider == "" {
		req.PreferProvider = r.Header.Get("X-Prefer-Provider")
	}
	if req.BudgetKey == "" {
		req.BudgetKey = r.Header.Get("X-Budget-Key")
	}

	req.Cache = !cache.ShouldBypass(map[string]string{
		"X-Cache-Bypass": r.Header.Get("X-Cache-Bypass"),
		"Cache-Control":  r.Header.Get("Cache-Control"),
	})
	if v := r.Header.Get("X-Cache"); v == "false" {
		req.Cache = false
	}
	if req.CacheRaw != nil {
		req.Cache = *req.CacheRaw
	}
}

func estimateTokensFromMessages(messages []provider.ChatMessage) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return (chars + 3) / 4
}

func messageContents(messages []provider.ChatMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

// costForResult prices a completed call against its capability profile,
// falling back to half the adapter's own estimate when no profile exists
// (spec.md §9a: adapters without a seeded profile are assumed to be
// roughly 2x more conservative than actual cost in their own estimator).
func (s *Server) costForResult(providerName, model string, usage provider.Usage, adapter provider.Adapter, req *provider.ChatRequest) float64 {
	if profile, ok := s.Caps.GetProfile(providerName, model); ok {
		return (float64(usage.PromptTokens)/1000)*profile.CostPer1kIn + (float64(usage.CompletionTokens)/1000)*profile.CostPer1kOut
	}
	if adapter != nil {
		return adapter.EstimateCost(req).EstimatedCostUSD / 2
	}
	return 0
}

func (s *Server) validateChatRequest(req *provider.ChatRequest) *apierrors.Error {
	if req.Model == "" {
		return apierrors.New(apierrors.KindInvalidRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return apierrors.New(apierrors.KindInvalidRequest, "messages must not be empty")
	}
	for _, t := range req.Tools {
		if t.Type != "function" {
			return apierrors.New(apierrors.KindInvalidRequest, "tools[].type must be \"function\"")
		}
		if len(t.Function) == 0 || !json.Valid(t.Function) {
			return apierrors.New(apierrors.KindInvalidRequest, "tools[].function must be a valid JSON object")
		}
	}
	return nil
}

// ChatCompletions implements the unary and SSE-streaming chat pipeline.
func (s *Server) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := RequestIDFrom(r.Context())

	var req provider.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}
	applyHeaderExtensions(&req, r)

	if apiErr := s.validateChatRequest(&req); apiErr != nil {
		writeErr(w, apiErr)
		return
	}

	rec := apiKeyRecordFrom(r.Context())
	if rec != nil {
		if result := s.Enforcer.CheckBudget(rec); !result.Allowed {
			writeErr(w, apierrors.New(apierrors.KindBudgetExceeded, result.Reason))
			return
		}
		if rec.RateLimitRPM != nil {
			limit, err := s.RateLimiter.CheckRPM(r.Context(), rec.ID, *rec.RateLimitRPM)
			if err == nil && !limit.Allowed {
				setRateLimitHeaders(w, limit)
				writeErr(w, apierrors.New(apierrors.KindRateLimit, "requests-per-minute limit exceeded"))
				return
			}
		}
		if rec.RateLimitTPM != nil {
			estimated := estimateTokensFromMessages(req.Messages)
			limit, err := s.RateLimiter.CheckTPM(r.Context(), rec.ID, estimated, *rec.RateLimitTPM)
			if err == nil && !limit.Allowed {
				setRateLimitHeaders(w, limit)
				writeErr(w, apierrors.New(apierrors.KindRateLimit, "tokens-per-minute limit exceeded"))
				return
			}
		}
	}

	s.Tracker.Begin(reqID)

	if req.Stream {
		s.handleStreamingChat(w, r, &req, reqID, start)
		return
	}
	s.handleUnaryChat(w, r, &req, reqID, start)
}

func (s *Server) handleUnaryChat(w http.ResponseWriter, r *http.Request, req *provider.ChatRequest, reqID string, start time.Time) {
	ctx := r.Context()
	o := &outcome{model: req.Model, strategy: req.RoutingStrategy}

	defer func() {
		latencyMs := float64(time.Since(start).Milliseconds())
		s.Tracker.Complete(metrics.CompletedRequest{
			RequestID: reqID, Provider: o.provider, Model: o.model, CostUSD: o.costUSD,
			LatencyMs: latencyMs, CacheHit: o.cacheHit, Timestamp: time.Now(),
		})
		s.Metrics.RecordRequest(o.provider, o.model, strconv.Itoa(o.statusCode), o.strategy, time.Since(start).Seconds(), int64(o.promptTokens), int64(o.completionTokens), o.costUSD)
		s.AsyncLogger.Enqueue(persistence.RequestLog{
			RequestID: reqID, ApiKeyID: apiKeyID(r), Provider: o.provider, Model: o.model, Strategy: o.strategy,
			InputTokens: o.promptTokens, OutputTokens: o.completionTokens, CostUSD: o.costUSD,
			LatencyMs: int64(latencyMs), Stream: false, StatusCode: o.statusCode, Error: o.errMsg,
			CacheHit: o.cacheHit, CreatedAt: time.Now(),
		})
	}()

	queryText := cache.ConcatMessages(messageContents(req.Messages))

	if req.Cache {
		if hit := s.Cache.Lookup(ctx, queryText, req.Model); hit.Hit {
			o.cacheHit = true
			o.provider = "cache"
			o.statusCode = http.StatusOK
			s.CacheStats.RecordHit(req.Model, 0)
			s.Metrics.RecordCacheHit()
			body := attachGatewayMeta(hit.Entry.Response, GatewayMeta{
				Provider: "cache", RoutingDecision: "cache_hit", CacheHit: true,
			})
			w.Header().Set("X-Request-Id", reqID)
			w.Header().Set("X-Response-Time", fmt.Sprintf("%.2f", time.Since(start).Seconds()*1000))
			writeJSON(w, json.RawMessage(body))
			return
		}
		s.CacheStats.RecordMiss(req.Model)
		s.Metrics.RecordCacheMiss()
	}

	decision, err := s.Router().Route(routing.Request{
		Model: req.Model, Messages: toClassifierMessages(req.Messages),
		RoutingStrategy: routing.Strategy(req.RoutingStrategy), PreferProvider: req.PreferProvider,
	})
	if err != nil {
		o.statusCode = http.StatusServiceUnavailable
		o.errMsg = err.Error()
		writeErr(w, apierrors.New(apierrors.KindServiceUnavailable, "no healthy provider available"))
		return
	}
	o.strategy = string(decision.Strategy)

	result, err := s.Fallback.Execute(ctx, req, decision.Provider, s.RoutingCfg().FallbackChain)
	if err != nil {
		o.statusCode = http.StatusBadGateway
		o.errMsg = err.Error()
		writeErr(w, apierrors.New(apierrors.KindAllProvidersFailed, "all providers failed: "+err.Error()))
		return
	}

	o.provider = result.Provider
	o.fallbackUsed = result.FallbackUsed
	o.promptTokens = result.ChatResult.Usage.PromptTokens
	o.completionTokens = result.ChatResult.Usage.CompletionTokens
	o.statusCode = http.StatusOK

	adapter, _ := s.Registry.Get(result.Provider)
	o.costUSD = s.costForResult(result.Provider, req.Model, result.ChatResult.Usage, adapter, req)

	latencyMs := time.Since(start).Milliseconds()
	s.Caps.UpdateLatency(result.Provider, req.Model, float64(latencyMs))

	resp := provider.ChatResponse{
		ID:      "chatcmpl-" + reqID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []provider.Choice{{
			Index:        0,
			Message:      provider.ChatMessage{Role: "assistant", Content: result.ChatResult.Content},
			FinishReason: result.ChatResult.FinishReason,
		}},
		Usage: result.ChatResult.Usage,
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		o.statusCode = http.StatusInternalServerError
		writeErr(w, apierrors.New(apierrors.KindServerError, "failed to encode response"))
		return
	}

	if req.Cache {
		s.Cache.Store(ctx, queryText, req.Model, raw)
	}
	if rec := apiKeyRecordFrom(ctx); rec != nil {
		s.KeyStore.RecordUsage(rec.ID, int64(result.ChatResult.Usage.TotalTokens), o.costUSD)
	}
	s.Enforcer.RecordGlobalUsage(int64(result.ChatResult.Usage.TotalTokens), o.costUSD)

	body := attachGatewayMeta(raw, GatewayMeta{
		Provider: result.Provider, RoutingDecision: decision.Reasoning, LatencyMs: latencyMs,
		CostUSD: o.costUSD, CacheHit: false, FallbackUsed: result.FallbackUsed,
	})

	w.Header().Set("X-Request-Id", reqID)
	w.Header().Set("X-Response-Time", fmt.Sprintf("%.2f", float64(latencyMs)))
	writeJSON(w, json.RawMessage(body))
}

// handleStreamingChat runs the SSE branch of the pipeline: no cache lookup,
// no fallback, and the completion token count is estimated from streamed
// content length since usage is rarely reported mid-stream.
func (s *Server) handleStreamingChat(w http.ResponseWriter, r *http.Request, req *provider.ChatRequest, reqID string, start time.Time) {
	o := &outcome{model: req.Model, strategy: req.RoutingStrategy}
	defer func() {
		latencyMs := float64(time.Since(start).Milliseconds())
		s.Tracker.Complete(metrics.CompletedRequest{
			RequestID: reqID, Provider: o.provider, Model: o.model, CostUSD: o.costUSD,
			LatencyMs: latencyMs, CacheHit: false, Timestamp: time.Now(),
		})
		s.Metrics.RecordRequest(o.provider, o.model, strconv.Itoa(o.statusCode), o.strategy, time.Since(start).Seconds(), int64(o.promptTokens), int64(o.completionTokens), o.costUSD)
		s.AsyncLogger.Enqueue(persistence.RequestLog{
			RequestID: reqID, ApiKeyID: apiKeyID(r), Provider: o.provider, Model: o.model, Strategy: o.strategy,
			InputTokens: o.promptTokens, OutputTokens: o.completionTokens, CostUSD: o.costUSD,
			LatencyMs: int64(latencyMs), Stream: true, StatusCode: o.statusCode, Error: o.errMsg,
			CreatedAt: time.Now(),
		})
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		o.statusCode = http.StatusInternalServerError
		o.errMsg = "streaming unsupported by this connection"
		writeErr(w, apierrors.New(apierrors.KindStreamError, o.errMsg))
		return
	}

	decision, err := s.Router().Route(routing.Request{
		Model: req.Model, Messages: toClassifierMessages(req.Messages),
		RoutingStrategy: routing.Strategy(req.RoutingStrategy), PreferProvider: req.PreferProvider,
	})
	if err != nil {
		o.statusCode = http.StatusServiceUnavailable
		writeErr(w, apierrors.New(apierrors.KindServiceUnavailable, "no healthy provider available"))
		return
	}
	o.strategy = string(decision.Strategy)
	o.provider = decision.Provider

	adapter, ok := s.Registry.Get(decision.Provider)
	if !ok {
		o.statusCode = http.StatusBadGateway
		writeErr(w, apierrors.New(apierrors.KindProviderUnavailable, "provider not registered"))
		return
	}

	stream, err := adapter.ChatStream(r.Context(), req)
	if err != nil {
		s.Breakers.RecordFailure(decision.Provider)
		o.statusCode = http.StatusBadGateway
		o.errMsg = err.Error()
		writeErr(w, apierrors.New(apierrors.KindProviderUnavailable, "upstream streaming error: "+err.Error()))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-Id", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	o.promptTokens = estimateTokensFromMessages(req.Messages)
	contentLen := 0
	o.statusCode = http.StatusOK

	for {
		chunk, err := stream.Next()
		if err != nil {
			if err != io.EOF {
				o.errMsg = err.Error()
			}
			break
		}
		contentLen += len(chunk.Content)

		frame := map[string]interface{}{
			"id": "chatcmpl-" + reqID, "object": "chat.completion.chunk",
			"created": time.Now().Unix(), "model": req.Model,
			"choices": []map[string]interface{}{{
				"index": 0, "delta": map[string]string{"content": chunk.Content},
				"finish_reason": nilIfEmpty(chunk.FinishReason),
			}},
		}
		payload, _ := json.Marshal(frame)
		if _, werr := w.Write([]byte("data: " + string(payload) + "\n\n")); werr != nil {
			break
		}
		flusher.Flush()

		if chunk.FinishReason != "" {
			break
		}
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()

	o.completionTokens = int(math.Ceil(float64(contentLen) / 4))
	s.Breakers.RecordSuccess(decision.Provider)
	s.Caps.UpdateLatency(decision.Provider, req.Model, float64(time.Since(start).Milliseconds()))

	o.costUSD = s.costForResult(decision.Provider, req.Model, provider.Usage{
		PromptTokens: o.promptTokens, CompletionTokens: o.completionTokens, TotalTokens: o.promptTokens + o.completionTokens,
	}, adapter, req)

	if rec := apiKeyRecordFrom(r.Context()); rec != nil {
		s.KeyStore.RecordUsage(rec.ID, int64(o.promptTokens+o.completionTokens), o.costUSD)
	}
	s.Enforcer.RecordGlobalUsage(int64(o.promptTokens+o.completionTokens), o.costUSD)
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func toClassifierMessages(messages []provider.ChatMessage) []classifier.Message {
	out := make([]classifier.Message, len(messages))
	for i, m := range messages {
		out[i] = classifier.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func apiKeyID(r *http.Request) string {
	if rec := apiKeyRecordFrom(r.Context()); rec != nil {
		return rec.ID
	}
	return ""
}
