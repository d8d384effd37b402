package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

var anthropicVirtuals = map[string]string{
	"auto":    "claude-3-5-sonnet-20241022",
	"fast":    "claude-3-5-haiku-20241022",
	"cheap":   "claude-3-5-haiku-20241022",
	"quality": "claude-3-opus-20240229",
}

var anthropicDefaultModels = []string{
	"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229",
}

// anthropicAdapter speaks Anthropic's native /v1/messages shape: unlike
// the OpenAI-compatible vendors, every system message, wherever it appears,
// collapses into one top-level "system" field rather than riding in the messages
// array (spec.md §4.1).
type anthropicAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	models  []string
}

// NewAnthropic builds the Anthropic adapter.
func NewAnthropic(baseURL, apiKey string) Adapter {
	return &anthropicAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  NewPooledClient(DefaultPoolConfig()),
		models:  anthropicDefaultModels,
	}
}

func (a *anthropicAdapter) Name() string { return "anthropic" }

func (a *anthropicAdapter) ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(a.models))
	for _, m := range a.models {
		out = append(out, ModelInfo{ID: m, Object: "model", OwnedBy: "anthropic", Permission: []string{}, Root: m})
	}
	return out
}

func (a *anthropicAdapter) resolveModel(model string) string {
	if concrete, ok := anthropicVirtuals[model]; ok {
		return concrete
	}
	return model
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

// toAnthropicTools re-shapes the gateway's OpenAI-style {type, function:
// {name, description, parameters}} tool definitions into Anthropic's flat
// {name, description, input_schema} form; malformed entries are dropped
// rather than failing the whole request.
func toAnthropicTools(tools []Tool) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		var fn struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Parameters  json.RawMessage `json:"parameters"`
		}
		if err := json.Unmarshal(t.Function, &fn); err != nil || fn.Name == "" {
			continue
		}
		out = append(out, anthropicTool{Name: fn.Name, Description: fn.Description, InputSchema: fn.Parameters})
	}
	return out
}

// toAnthropicWire collapses every system message into one string
// and carries the rest through as user/assistant turns.
func toAnthropicWire(req *ChatRequest, model string) anthropicRequest {
	var system strings.Builder
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	maxTokens := 1024
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	return anthropicRequest{
		Model:       model,
		System:      system.String(),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Tools:       toAnthropicTools(req.Tools),
	}
}

func (a *anthropicAdapter) setHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-api-key", a.apiKey)
	r.Header.Set("anthropic-version", anthropicVersion)
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

func (a *anthropicAdapter) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if a.apiKey == "" {
		return nil, newError(ErrAuth, "no api key configured for anthropic")
	}
	wire := toAnthropicWire(req, a.resolveModel(req.Model))
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newError(ErrBadResponse, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrTransport, err.Error())
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, nil)
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, newError(ErrBadResponse, "decode response: "+err.Error())
	}
	text := ""
	for _, block := range ar.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	promptTokens := ar.Usage.InputTokens
	completionTokens := ar.Usage.OutputTokens
	return &ChatResult{
		Content:      text,
		FinishReason: mapAnthropicStopReason(ar.StopReason),
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Model: ar.Model,
	}, nil
}

// anthropicSSEStream parses Anthropic's content_block_delta event stream.
type anthropicSSEStream struct {
	body   io.ReadCloser
	reader *sseLineReader
}

func (a *anthropicAdapter) ChatStream(ctx context.Context, req *ChatRequest) (Stream, error) {
	if a.apiKey == "" {
		return nil, newError(ErrAuth, "no api key configured for anthropic")
	}
	wire := toAnthropicWire(req, a.resolveModel(req.Model))
	wire.Stream = true
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newError(ErrBadResponse, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrTransport, err.Error())
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(0, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, classifyHTTPError(resp.StatusCode, nil)
	}
	return &anthropicSSEStream{body: resp.Body, reader: newSSELineReader(resp.Body)}, nil
}

func (s *anthropicSSEStream) Next() (StreamChunk, error) {
	for {
		payload, err := s.reader.nextDataLine()
		if err != nil {
			return StreamChunk{}, err
		}
		var evt struct {
			Type  string `json:"type"`
			Delta struct {
				Type       string `json:"type"`
				Text       string `json:"text"`
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
		}
		if jerr := json.Unmarshal([]byte(payload), &evt); jerr != nil {
			continue
		}
		switch evt.Type {
		case "content_block_delta":
			return StreamChunk{Content: evt.Delta.Text}, nil
		case "message_delta":
			if evt.Delta.StopReason != "" {
				return StreamChunk{FinishReason: mapAnthropicStopReason(evt.Delta.StopReason)}, nil
			}
		case "message_stop":
			return StreamChunk{}, io.EOF
		}
	}
}

func (s *anthropicSSEStream) Close() error { return s.body.Close() }

func (a *anthropicAdapter) HealthCheck(ctx context.Context) HealthStatus {
	if a.apiKey == "" {
		return HealthStatus{Healthy: false, Message: "no api key configured", LastCheck: time.Now()}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	wire := anthropicRequest{
		Model:     anthropicVirtuals["cheap"],
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	body, _ := json.Marshal(wire)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error(), LastCheck: time.Now()}
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Healthy: false, LatencyMs: latency.Milliseconds(), Message: err.Error(), LastCheck: time.Now()}
	}
	defer resp.Body.Close()

	// Anthropic has no lightweight model-list endpoint; a successful or
	// rate-limited (429) response both indicate the credential is live.
	healthy := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusTooManyRequests
	msg := ""
	if !healthy {
		msg = http.StatusText(resp.StatusCode)
	}
	return HealthStatus{Healthy: healthy, LatencyMs: latency.Milliseconds(), Message: msg, LastCheck: time.Now()}
}

func (a *anthropicAdapter) EstimateCost(req *ChatRequest) CostEstimate {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	inputTokens := (chars + 3) / 4
	outputTokens := 1024
	if req.MaxTokens != nil {
		outputTokens = *req.MaxTokens
	}
	return CostEstimate{EstimatedInputTokens: inputTokens, EstimatedOutputTokens: outputTokens}
}
