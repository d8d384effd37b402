// Package routing implements the weighted-scoring router: classifier +
// capability map + registry health + a strategy's weights combine into a
// RoutingDecision.
package routing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/relaymesh/gateway/internal/capability"
	"github.com/relaymesh/gateway/internal/classifier"
	"github.com/relaymesh/gateway/internal/provider"
)

// Strategy selects the weighting preset a routing decision scores with.
type Strategy string

const (
	Cost     Strategy = "cost"
	Quality  Strategy = "quality"
	Latency  Strategy = "latency"
	Balanced Strategy = "balanced"
)

// Weights is a (w_cost, w_quality, w_latency) triple summing to 1.
type Weights struct {
	Cost, Quality, Latency float64
}

// presets maps each strategy to its fixed weights (spec.md §3).
var presets = map[Strategy]Weights{
	Balanced: {Cost: 0.40, Quality: 0.35, Latency: 0.25},
	Cost:     {Cost: 0.80, Quality: 0.10, Latency: 0.10},
	Quality:  {Cost: 0.05, Quality: 0.85, Latency: 0.10},
	Latency:  {Cost: 0.10, Quality: 0.10, Latency: 0.80},
}

var virtualModels = map[string]bool{"auto": true, "fast": true, "cheap": true, "quality": true}

// Request is the subset of a chat request the router needs.
type Request struct {
	Model               string
	Messages            []classifier.Message
	RoutingStrategy     Strategy // empty → config default
	PreferProvider      string
	MaxCostPer1k        *float64
	MaxLatencyMs        *float64
	RequiredCapabilities []string
}

// Config is the router's static policy: default strategy, local-first
// preference, and the ordered fallback chain handed to the fallback
// executor. Per-request constraints live on Request.
type Config struct {
	DefaultStrategy Strategy
	PreferLocal     bool
	FallbackChain   []string
}

// Decision is the router's output.
type Decision struct {
	Provider  string
	ModelID   string
	Strategy  Strategy
	Score     float64
	Reasoning string
}

// ErrNoProviders is returned when no healthy provider exists at all.
type ErrNoProviders struct{}

func (ErrNoProviders) Error() string { return "no_providers" }

// Router combines the registry, capability map, and classifier into
// routing decisions. It holds only read-only references; the registry's
// healthy set is snapshotted once per call so a concurrent health flip
// cannot yield an inconsistent decision (spec.md §9).
type Router struct {
	registry *provider.Registry
	caps     *capability.Map
	cfg      Config
}

// New builds a Router.
func New(registry *provider.Registry, caps *capability.Map, cfg Config) *Router {
	return &Router{registry: registry, caps: caps, cfg: cfg}
}

func weightsFor(s Strategy) (Weights, Strategy) {
	if w, ok := presets[s]; ok {
		return w, s
	}
	return presets[Balanced], Balanced
}

// Route implements spec.md §4.5's nine-step procedure.
func (r *Router) Route(req Request) (Decision, error) {
	strategy := req.RoutingStrategy
	if strategy == "" {
		strategy = r.cfg.DefaultStrategy
	}
	weights, strategy := weightsFor(strategy)

	healthyNames := r.registry.GetHealthy()
	healthySet := make(map[string]bool)
	for _, name := range healthyNames {
		healthySet[name] = true
	}

	// Step 2: direct model request.
	if !virtualModels[req.Model] {
		if ad, err := r.registry.FindProviderForModel(req.Model); err == nil && healthySet[ad.Name()] {
			return Decision{
				Provider:  ad.Name(),
				ModelID:   req.Model,
				Strategy:  strategy,
				Score:     1,
				Reasoning: "Direct model request",
			}, nil
		}
	}

	if len(healthySet) == 0 {
		return Decision{}, ErrNoProviders{}
	}

	result := classifier.Classify(req.Messages)
	required := make(map[string]bool)
	for c := range result.RequiredCapabilities {
		required[c] = true
	}
	for _, c := range req.RequiredCapabilities {
		required[c] = true
	}

	type scored struct {
		profile *capability.Profile
		score   float64
	}
	var candidates []scored

	for _, p := range r.caps.GetAllProfiles() {
		if !healthySet[p.Provider] {
			continue
		}
		if !p.HasCapabilities(required) {
			continue
		}
		if req.MaxCostPer1k != nil && (p.CostPer1kIn+p.CostPer1kOut)/2 > *req.MaxCostPer1k {
			continue
		}
		if req.MaxLatencyMs != nil && p.AvgLatencyMs() > *req.MaxLatencyMs {
			continue
		}
		score := scoreProfile(p, weights, result.Complexity)
		candidates = append(candidates, scored{profile: p, score: score})
	}

	if len(candidates) == 0 {
		for _, name := range healthyNames {
			return Decision{
				Provider:  name,
				ModelID:   req.Model,
				Strategy:  strategy,
				Score:     0,
				Reasoning: "No candidate profile matched constraints; falling back to first healthy provider",
			}, nil
		}
		return Decision{}, ErrNoProviders{}
	}

	if req.PreferProvider != "" {
		var restricted []scored
		for _, c := range candidates {
			if c.profile.Provider == req.PreferProvider {
				restricted = append(restricted, c)
			}
		}
		if len(restricted) > 0 && healthySet[req.PreferProvider] {
			candidates = restricted
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return r.caps.InsertionIndex(candidates[i].profile.Provider, candidates[i].profile.ModelID) <
			r.caps.InsertionIndex(candidates[j].profile.Provider, candidates[j].profile.ModelID)
	})

	best := candidates[0]
	chosen := best

	if r.cfg.PreferLocal {
		for _, c := range candidates {
			if c.profile.Provider == "ollama" && c.score >= 0.7*best.score {
				chosen = c
				break
			}
		}
	}

	reasoning := fmt.Sprintf(
		"Weighted scoring (%s): cost=%.2f quality=%.2f latency=%.2f -> score %.3f",
		strategy, weights.Cost, weights.Quality, weights.Latency, chosen.score,
	)
	if chosen.profile.Provider == "ollama" && chosen.profile != best.profile {
		reasoning = "Local-first: " + reasoning
	}

	return Decision{
		Provider:  chosen.profile.Provider,
		ModelID:   chosen.profile.ModelID,
		Strategy:  strategy,
		Score:     chosen.score,
		Reasoning: reasoning,
	}, nil
}

func scoreProfile(p *capability.Profile, w Weights, complexity classifier.Complexity) float64 {
	avgCost := (p.CostPer1kIn + p.CostPer1kOut) / 2
	costScore := math.Max(0, 1-avgCost/0.10)

	qualityScore := p.QualityScore / 100
	if complexity == classifier.Complex {
		qualityScore = math.Pow(qualityScore, 0.8)
	}

	latencyScore := math.Max(0, 1-p.AvgLatencyMs()/5000)

	return w.Cost*costScore + w.Quality*qualityScore + w.Latency*latencyScore
}

// WeightsSum1 is exposed for tests asserting the invariant that every
// preset's weights sum to 1.0 (spec.md §8 invariant 2).
func WeightsSum1(s Strategy) float64 {
	w := presets[s]
	return w.Cost + w.Quality + w.Latency
}

// ParseStrategy parses a routing-strategy request header value, falling
// back to empty (meaning "use config default") for unrecognized input.
func ParseStrategy(v string) Strategy {
	switch strings.ToLower(v) {
	case "cost":
		return Cost
	case "quality":
		return Quality
	case "latency":
		return Latency
	case "balanced":
		return Balanced
	default:
		return ""
	}
}
