package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

var ollamaVirtuals = map[string]string{
	"auto":    "llama3.1",
	"fast":    "llama3.1",
	"cheap":   "llama3.1",
	"quality": "llama3.1:70b",
}

var ollamaDefaultModels = []string{"llama3.1", "llama3.1:70b", "mistral", "nomic-embed-text"}

// ollamaAdapter talks to a local Ollama daemon. It never requires an API
// key — HealthCheck still performs network I/O, unlike vendor adapters
// whose absent key short-circuits it (spec.md §4.1 only exempts adapters
// that need a credential to reach the network at all).
type ollamaAdapter struct {
	baseURL string
	client  *http.Client
	models  []string
}

// NewOllama builds the local Ollama adapter.
func NewOllama(baseURL string) Adapter {
	return &ollamaAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewPooledClient(DefaultPoolConfig()),
		models:  ollamaDefaultModels,
	}
}

func (o *ollamaAdapter) Name() string { return "ollama" }

func (o *ollamaAdapter) ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(o.models))
	for _, m := range o.models {
		out = append(out, ModelInfo{ID: m, Object: "model", OwnedBy: "ollama", Permission: []string{}, Root: m})
	}
	return out
}

func (o *ollamaAdapter) resolveModel(model string) string {
	if concrete, ok := ollamaVirtuals[model]; ok {
		return concrete
	}
	return model
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  ollamaOptions    `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

func (o *ollamaAdapter) toWire(req *ChatRequest, stream bool) ollamaChatRequest {
	msgs := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	return ollamaChatRequest{
		Model:    o.resolveModel(req.Model),
		Messages: msgs,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}
}

type ollamaChatResponse struct {
	Model     string         `json:"model"`
	Message   ollamaMessage  `json:"message"`
	Done      bool           `json:"done"`
	DoneReason string        `json:"done_reason"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	EvalCount       int      `json:"eval_count"`
}

func mapOllamaDoneReason(reason string) string {
	switch reason {
	case "", "stop":
		return "stop"
	case "length":
		return "length"
	default:
		return reason
	}
}

func (o *ollamaAdapter) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if len(req.Tools) > 0 {
		return nil, newError(ErrBadResponse, "ollama adapter does not support tool/function calling")
	}
	wire := o.toWire(req, false)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newError(ErrBadResponse, "marshal request: "+err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrTransport, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, nil)
	}

	var or ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, newError(ErrBadResponse, "decode response: "+err.Error())
	}
	return &ChatResult{
		Content:      or.Message.Content,
		FinishReason: mapOllamaDoneReason(or.DoneReason),
		Usage: Usage{
			PromptTokens:     or.PromptEvalCount,
			CompletionTokens: or.EvalCount,
			TotalTokens:      or.PromptEvalCount + or.EvalCount,
		},
		Model: or.Model,
	}, nil
}

type ollamaStream struct {
	dec  *json.Decoder
	body interface{ Close() error }
}

func (s *ollamaStream) Next() (StreamChunk, error) {
	var or ollamaChatResponse
	if err := s.dec.Decode(&or); err != nil {
		return StreamChunk{}, err
	}
	if or.Done {
		return StreamChunk{FinishReason: mapOllamaDoneReason(or.DoneReason)}, nil
	}
	return StreamChunk{Content: or.Message.Content}, nil
}

func (s *ollamaStream) Close() error { return s.body.Close() }

func (o *ollamaAdapter) ChatStream(ctx context.Context, req *ChatRequest) (Stream, error) {
	if len(req.Tools) > 0 {
		return nil, newError(ErrBadResponse, "ollama adapter does not support tool/function calling")
	}
	wire := o.toWire(req, true)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newError(ErrBadResponse, "marshal request: "+err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrTransport, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(0, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, classifyHTTPError(resp.StatusCode, nil)
	}
	// Ollama streams newline-delimited JSON objects, not SSE frames.
	return &ollamaStream{dec: json.NewDecoder(resp.Body), body: resp.Body}, nil
}

func (o *ollamaAdapter) HealthCheck(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error(), LastCheck: time.Now()}
	}
	resp, err := o.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Healthy: false, LatencyMs: latency.Milliseconds(), Message: err.Error(), LastCheck: time.Now()}
	}
	defer resp.Body.Close()
	healthy := resp.StatusCode == http.StatusOK
	msg := ""
	if !healthy {
		msg = http.StatusText(resp.StatusCode)
	}
	return HealthStatus{Healthy: healthy, LatencyMs: latency.Milliseconds(), Message: msg, LastCheck: time.Now()}
}

func (o *ollamaAdapter) EstimateCost(req *ChatRequest) CostEstimate {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	inputTokens := (chars + 3) / 4
	outputTokens := 512
	if req.MaxTokens != nil {
		outputTokens = *req.MaxTokens
	}
	// Local inference: no per-token dollar cost.
	return CostEstimate{EstimatedInputTokens: inputTokens, EstimatedOutputTokens: outputTokens, EstimatedCostUSD: 0}
}
