// Package provider defines the uniform adapter contract over upstream
// model vendors, the registry that holds them, and one adapter per vendor.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// ChatMessage is one OpenAI-shape message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a pass-through function/tool definition.
type Tool struct {
	Type     string          `json:"type"`
	Function json.RawMessage `json:"function"`
}

// ChatRequest is the OpenAI-shape request the gateway accepts.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	N           int           `json:"n,omitempty"`
	Tools       []Tool        `json:"tools,omitempty"`

	// Gateway extensions. Per spec.md §3/§6 these are fields of the request
	// body (an equivalent header is also accepted as a fallback); adapters
	// never see them since each builds its own vendor-specific wire struct
	// rather than re-marshaling ChatRequest.
	RoutingStrategy string `json:"x-routing-strategy,omitempty"`
	PreferProvider  string `json:"x-prefer-provider,omitempty"`
	BudgetKey       string `json:"x-budget-key,omitempty"`

	// CacheRaw carries the body's x-cache value, if the client set one;
	// nil means unset, so a header (or the gateway's own default) still
	// applies. Cache is the resolved value gateway.applyHeaderExtensions
	// computes from CacheRaw plus headers.
	CacheRaw *bool `json:"x-cache,omitempty"`
	Cache    bool  `json:"-"`
}

// ChatResult is what an adapter call produces.
type ChatResult struct {
	Content      string
	FinishReason string // stop | length | content_filter | "" (mid-stream)
	Usage        Usage
	Model        string
}

// Usage is token accounting, shared by chat and embeddings responses.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one OpenAI-shape chat completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse is the OpenAI-shape wire response, before gateway metadata
// is attached by the handler.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// EmbeddingsRequest accepts one string or a sequence of strings as input.
type EmbeddingsRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

// EmbeddingData is one embedding vector in an EmbeddingsResponse.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingsResponse is the OpenAI-shape embeddings wire response.
type EmbeddingsResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  Usage           `json:"usage"`
}

// ModelInfo is one entry in the /v1/models listing.
type ModelInfo struct {
	ID         string      `json:"id"`
	Object     string      `json:"object"`
	Created    int64       `json:"created"`
	OwnedBy    string      `json:"owned_by"`
	Permission []string    `json:"permission"`
	Root       string      `json:"root"`
	Parent     interface{} `json:"parent"`
	Provider   string      `json:"-"`
}

// HealthStatus is the result of one health probe.
type HealthStatus struct {
	Healthy   bool
	LatencyMs int64
	Message   string
	LastCheck time.Time
	// ModelCount is the number of models the registry last observed from
	// this adapter; reported by the provider status endpoint. Model lookup
	// (FindProviderForModel) scans the stored model lists, not this count.
	ModelCount int
}

// CostEstimate is the result of an adapter's estimate_cost call.
type CostEstimate struct {
	EstimatedInputTokens  int
	EstimatedOutputTokens int
	EstimatedCostUSD      float64
}

// ErrorKind enumerates the ways a provider call can fail.
type ErrorKind string

const (
	ErrTimeout     ErrorKind = "timeout"
	ErrTransport   ErrorKind = "transport"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrServer5xx   ErrorKind = "server_5xx"
	ErrBadResponse ErrorKind = "bad_response"
	ErrAuth        ErrorKind = "auth"
)

// Error is the typed failure every adapter call surfaces on failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// StreamChunk is one element of a chat_stream sequence.
type StreamChunk struct {
	Content      string
	FinishReason string // empty until the terminating chunk
}

// Stream is a finite lazy sequence of StreamChunk, terminated either by
// io.EOF from Next or by a chunk carrying a non-empty FinishReason.
type Stream interface {
	Next() (StreamChunk, error)
	Close() error
}

// Adapter is the uniform interface every vendor connector implements.
type Adapter interface {
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)
	ChatStream(ctx context.Context, req *ChatRequest) (Stream, error)
	ListModels() []ModelInfo
	HealthCheck(ctx context.Context) HealthStatus
	EstimateCost(req *ChatRequest) CostEstimate
}
