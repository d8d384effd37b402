package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAICompatible is the shared implementation behind every adapter that
// speaks the OpenAI chat-completions wire shape verbatim (OpenAI itself,
// Groq, Together). The vendor constructors (NewOpenAI, NewGroq,
// NewTogether) return it directly and only vary name, base URL, key,
// default model list, and virtual-model table.
type openAICompatible struct {
	name       string
	baseURL    string
	apiKey     string
	authHeader string // "Bearer " by default
	client     *http.Client
	models     []string
	virtuals   map[string]string
}

func newOpenAICompatible(name, baseURL, apiKey string, models []string, virtuals map[string]string) *openAICompatible {
	return &openAICompatible{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		authHeader: "Bearer ",
		client:     NewPooledClient(DefaultPoolConfig()),
		models:     models,
		virtuals:   virtuals,
	}
}

func (p *openAICompatible) Name() string { return p.name }

func (p *openAICompatible) ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(p.models))
	for _, m := range p.models {
		out = append(out, ModelInfo{ID: m, Object: "model", OwnedBy: p.name, Permission: []string{}, Root: m})
	}
	return out
}

// resolveModel maps a virtual model name to a concrete one for this vendor.
func (p *openAICompatible) resolveModel(model string) string {
	if concrete, ok := p.virtuals[model]; ok {
		return concrete
	}
	return model
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []Tool        `json:"tools,omitempty"`
}

// toWire passes tool definitions through unmodified: this vendor family
// speaks the same tools wire shape the gateway accepts them in, so no
// translation is needed beyond forwarding the slice.
func (p *openAICompatible) toWire(req *ChatRequest) wireRequest {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, wireMessage{Role: m.Role, Content: m.Content})
	}
	return wireRequest{
		Model:       p.resolveModel(req.Model),
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Tools:       req.Tools,
	}
}

func (p *openAICompatible) setHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", p.authHeader+p.apiKey)
}

func classifyHTTPError(status int, err error) *Error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newError(ErrTimeout, err.Error())
		}
		return newError(ErrTransport, err.Error())
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(ErrAuth, fmt.Sprintf("status %d", status))
	case status == http.StatusTooManyRequests:
		return newError(ErrRateLimited, fmt.Sprintf("status %d", status))
	case status >= 500:
		return newError(ErrServer5xx, fmt.Sprintf("status %d", status))
	default:
		return newError(ErrBadResponse, fmt.Sprintf("status %d", status))
	}
}

func (p *openAICompatible) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if p.apiKey == "" {
		return nil, newError(ErrAuth, "no api key configured for "+p.name)
	}
	wire := p.toWire(req)
	wire.Stream = false
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newError(ErrBadResponse, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrTransport, err.Error())
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, nil)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, newError(ErrBadResponse, "decode response: "+err.Error())
	}
	if len(chatResp.Choices) == 0 {
		return nil, newError(ErrBadResponse, "no choices in response")
	}
	choice := chatResp.Choices[0]
	return &ChatResult{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        chatResp.Usage,
		Model:        chatResp.Model,
	}, nil
}

// sseStream adapts an SSE response body into the gateway's Stream contract,
// parsing `data: {...}`/`data: [DONE]` frames rather than returning raw bytes.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body)}
}

func (s *sseStream) Next() (StreamChunk, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if len(line) == 0 {
				return StreamChunk{}, io.EOF
			}
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			if err != nil {
				return StreamChunk{}, io.EOF
			}
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return StreamChunk{}, io.EOF
		}
		var frame struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if jerr := json.Unmarshal([]byte(payload), &frame); jerr != nil {
			continue
		}
		if len(frame.Choices) == 0 {
			continue
		}
		c := frame.Choices[0]
		finish := ""
		if c.FinishReason != nil {
			finish = *c.FinishReason
		}
		return StreamChunk{Content: c.Delta.Content, FinishReason: finish}, nil
	}
}

func (s *sseStream) Close() error { return s.body.Close() }

func (p *openAICompatible) ChatStream(ctx context.Context, req *ChatRequest) (Stream, error) {
	if p.apiKey == "" {
		return nil, newError(ErrAuth, "no api key configured for "+p.name)
	}
	wire := p.toWire(req)
	wire.Stream = true
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newError(ErrBadResponse, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrTransport, err.Error())
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(0, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, classifyHTTPError(resp.StatusCode, nil)
	}
	return newSSEStream(resp.Body), nil
}

func (p *openAICompatible) HealthCheck(ctx context.Context) HealthStatus {
	if p.apiKey == "" {
		return HealthStatus{Healthy: false, Message: "no api key configured", LastCheck: time.Now()}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error(), LastCheck: time.Now()}
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Healthy: false, LatencyMs: latency.Milliseconds(), Message: err.Error(), LastCheck: time.Now()}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	msg := ""
	if !healthy {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return HealthStatus{Healthy: healthy, LatencyMs: latency.Milliseconds(), Message: msg, LastCheck: time.Now()}
}

// EstimateCost uses the char/4 heuristic for input tokens and max_tokens
// (or a vendor default) for output tokens; pricing itself lives in the
// capability map, so this returns token counts plus a zero cost the
// handler replaces once it has a profile.
func (p *openAICompatible) EstimateCost(req *ChatRequest) CostEstimate {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	inputTokens := (chars + 3) / 4
	outputTokens := 256
	if req.MaxTokens != nil {
		outputTokens = *req.MaxTokens
	}
	return CostEstimate{EstimatedInputTokens: inputTokens, EstimatedOutputTokens: outputTokens}
}
