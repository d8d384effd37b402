// Package fallback executes a routing decision against the primary
// provider, and on failure walks an ordered backup list, coordinating
// with the circuit breaker manager and per-provider timeouts.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaymesh/gateway/internal/breaker"
	"github.com/relaymesh/gateway/internal/provider"
)

// DefaultMaxRetries is the ceiling on fallback attempts beyond the primary.
const DefaultMaxRetries = 3

// Attempt records one try against one provider.
type Attempt struct {
	ProviderID   string
	Success      bool
	ErrorMessage string
	LatencyMs    int64
}

// Result is what Execute returns on success.
type Result struct {
	ChatResult   *provider.ChatResult
	Provider     string
	Attempts     []Attempt
	FallbackUsed bool
}

// ErrAllProvidersFailed carries the concatenated attempt summary.
type ErrAllProvidersFailed struct {
	Attempts []Attempt
}

func (e *ErrAllProvidersFailed) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.ProviderID, a.ErrorMessage))
	}
	return "all_providers_failed: " + strings.Join(parts, "; ")
}

// TimeoutFor returns a provider's per-call completion timeout.
type TimeoutFor func(provider string) time.Duration

// Chain executes a primary-then-fallback attempt sequence.
type Chain struct {
	registry   *provider.Registry
	breakers   *breaker.Manager
	timeoutFor TimeoutFor
	maxRetries int
}

// New builds a Chain.
func New(registry *provider.Registry, breakers *breaker.Manager, timeoutFor TimeoutFor) *Chain {
	return &Chain{registry: registry, breakers: breakers, timeoutFor: timeoutFor, maxRetries: DefaultMaxRetries}
}

// Execute runs primary, then iterates fallbackChain (minus primary) on
// failure, per spec.md §4.7.
func (c *Chain) Execute(ctx context.Context, req *provider.ChatRequest, primary string, fallbackChain []string) (*Result, error) {
	var attempts []Attempt

	if res, attempt, err := c.tryProvider(ctx, req, primary); err == nil {
		attempts = append(attempts, attempt)
		return &Result{ChatResult: res, Provider: primary, Attempts: attempts, FallbackUsed: false}, nil
	} else {
		attempts = append(attempts, attempt)
	}

	for _, id := range fallbackChain {
		if id == primary {
			continue
		}
		if len(attempts) >= c.maxRetries+1 {
			break
		}

		if !c.breakers.Admit(id) {
			attempts = append(attempts, Attempt{ProviderID: id, Success: false, ErrorMessage: "Circuit breaker open"})
			continue
		}
		if _, ok := c.registry.Get(id); !ok || !c.registry.IsHealthy(id) {
			attempts = append(attempts, Attempt{ProviderID: id, Success: false, ErrorMessage: "provider unknown or unhealthy"})
			continue
		}

		res, attempt, err := c.tryProvider(ctx, req, id)
		attempts = append(attempts, attempt)
		if err == nil {
			return &Result{ChatResult: res, Provider: id, Attempts: attempts, FallbackUsed: true}, nil
		}
	}

	return nil, &ErrAllProvidersFailed{Attempts: attempts}
}

// tryProvider calls the adapter under a per-provider deadline, recording
// the outcome against its breaker.
func (c *Chain) tryProvider(ctx context.Context, req *provider.ChatRequest, id string) (*provider.ChatResult, Attempt, error) {
	ad, ok := c.registry.Get(id)
	if !ok {
		return nil, Attempt{ProviderID: id, Success: false, ErrorMessage: "provider not registered"}, errors.New("provider not registered")
	}

	timeout := c.timeoutFor(id)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := ad.Chat(callCtx, req)
	latency := time.Since(start)

	if err != nil {
		c.breakers.RecordFailure(id)
		return nil, Attempt{ProviderID: id, Success: false, ErrorMessage: err.Error(), LatencyMs: latency.Milliseconds()}, err
	}
	c.breakers.RecordSuccess(id)
	return res, Attempt{ProviderID: id, Success: true, LatencyMs: latency.Milliseconds()}, nil
}
