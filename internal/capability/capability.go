// Package capability holds the static model profile table the router
// scores candidates against, plus the mutable latency history each
// completed request feeds back into.
package capability

import (
	"sort"
	"strings"
	"sync"
)

// Profile is one (provider, model) entry in the capability map.
// Capabilities, quality, context window, and cost are immutable after
// construction; AvgLatencyMs and the latency ring are updated by the
// handler as real completions land.
type Profile struct {
	Provider     string
	ModelID      string
	Capabilities map[string]bool
	QualityScore float64 // 0-100
	ContextWindow int
	CostPer1kIn  float64
	CostPer1kOut float64

	mu           sync.RWMutex
	avgLatencyMs float64
	history      []float64 // bounded ring, last 100 observations
}

const latencyHistoryCap = 100
const latencyEMAAlpha = 0.2

func newProfile(provider, model string, caps []string, quality float64, ctxWindow int, costIn, costOut, seedLatency float64) *Profile {
	capSet := make(map[string]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}
	return &Profile{
		Provider:      provider,
		ModelID:       model,
		Capabilities:  capSet,
		QualityScore:  quality,
		ContextWindow: ctxWindow,
		CostPer1kIn:   costIn,
		CostPer1kOut:  costOut,
		avgLatencyMs:  seedLatency,
	}
}

// AvgLatencyMs returns the current EMA latency estimate.
func (p *Profile) AvgLatencyMs() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.avgLatencyMs
}

// HasCapabilities reports whether required is a subset of the profile's
// capability set (spec.md §8 "capability subset" law).
func (p *Profile) HasCapabilities(required map[string]bool) bool {
	for c := range required {
		if !p.Capabilities[c] {
			return false
		}
	}
	return true
}

// recordLatency folds one observation into the EMA and the bounded ring.
func (p *Profile) recordLatency(observedMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.avgLatencyMs = (1-latencyEMAAlpha)*p.avgLatencyMs + latencyEMAAlpha*observedMs
	p.history = append(p.history, observedMs)
	if len(p.history) > latencyHistoryCap {
		p.history = p.history[len(p.history)-latencyHistoryCap:]
	}
}

// Percentiles is the {p50, p95, p99} breakdown over recorded history.
type Percentiles struct {
	P50, P95, P99 float64
}

func (p *Profile) percentiles() Percentiles {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.history) == 0 {
		return Percentiles{}
	}
	sorted := append([]float64(nil), p.history...)
	sort.Float64s(sorted)
	pick := func(q float64) float64 {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return Percentiles{P50: pick(0.50), P95: pick(0.95), P99: pick(0.99)}
}

// Map is the capability map: a seeded, append-only set of profiles
// (construction-time insertions, plus an admin alias table) with
// fine-grained per-profile locking for the latency mutation path.
type Map struct {
	mu      sync.RWMutex
	order   []string // "provider/model" insertion order, for score-tie-breaks
	byKey   map[string]*Profile
	aliases map[string]string
}

func key(provider, model string) string { return provider + "/" + model }

// NewMap seeds the capability map with the gateway's default profile set.
func NewMap() *Map {
	m := &Map{byKey: make(map[string]*Profile), aliases: make(map[string]string)}
	for _, seed := range defaultProfiles {
		m.addProfile(seed.Provider, seed.Model, seed.Caps, seed.Quality, seed.CtxWindow, seed.CostIn, seed.CostOut, seed.Latency)
	}
	return m
}

func (m *Map) addProfile(provider, model string, caps []string, quality float64, ctxWindow int, costIn, costOut, seedLatency float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(provider, model)
	if _, exists := m.byKey[k]; !exists {
		m.order = append(m.order, k)
	}
	m.byKey[k] = newProfile(provider, model, caps, quality, ctxWindow, costIn, costOut, seedLatency)
}

// GetProfile returns the profile for (provider, model).
func (m *Map) GetProfile(provider, model string) (*Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byKey[key(provider, model)]
	return p, ok
}

// GetAllProfiles returns every profile in insertion order.
func (m *Map) GetAllProfiles() []*Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Profile, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.byKey[k])
	}
	return out
}

// InsertionIndex returns a profile's position in the seed order, used by
// the router to break score ties deterministically.
func (m *Map) InsertionIndex(provider, model string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := key(provider, model)
	for i, ok := range m.order {
		if ok == k {
			return i
		}
	}
	return len(m.order)
}

// GetProfilesByCapability returns every profile tagged with cap.
func (m *Map) GetProfilesByCapability(cap string) []*Profile {
	var out []*Profile
	for _, p := range m.GetAllProfiles() {
		if p.Capabilities[cap] {
			out = append(out, p)
		}
	}
	return out
}

// GetProfilesByProvider returns every profile for one provider.
func (m *Map) GetProfilesByProvider(provider string) []*Profile {
	var out []*Profile
	for _, p := range m.GetAllProfiles() {
		if p.Provider == provider {
			out = append(out, p)
		}
	}
	return out
}

// UpdateLatency folds a newly observed latency into the named profile's
// EMA and history ring. A profile that doesn't exist is silently ignored
// (the handler calls this best-effort after every completion).
func (m *Map) UpdateLatency(provider, model string, observedMs float64) {
	if p, ok := m.GetProfile(provider, model); ok {
		p.recordLatency(observedMs)
	}
}

// GetLatencyPercentiles returns the {p50,p95,p99} breakdown for a profile.
func (m *Map) GetLatencyPercentiles(provider, model string) (Percentiles, bool) {
	p, ok := m.GetProfile(provider, model)
	if !ok {
		return Percentiles{}, false
	}
	return p.percentiles(), true
}

// AddAlias registers a single-hop alias → concrete model mapping.
func (m *Map) AddAlias(alias, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[strings.ToLower(alias)] = model
}

// ResolveAlias resolves a single hop; returns the input unchanged if no
// alias is registered for it.
func (m *Map) ResolveAlias(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if resolved, ok := m.aliases[strings.ToLower(name)]; ok {
		return resolved
	}
	return name
}
