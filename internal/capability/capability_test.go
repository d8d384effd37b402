package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/capability"
)

func TestGetProfileLookup(t *testing.T) {
	m := capability.NewMap()
	p, ok := m.GetProfile("openai", "gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "openai", p.Provider)
	assert.True(t, p.Capabilities["code"])

	_, ok = m.GetProfile("openai", "does-not-exist")
	assert.False(t, ok)
}

func TestUpdateLatencyEMA(t *testing.T) {
	m := capability.NewMap()
	p, _ := m.GetProfile("groq", "llama-3.1-8b-instant")
	before := p.AvgLatencyMs()

	m.UpdateLatency("groq", "llama-3.1-8b-instant", before+1000)
	after := p.AvgLatencyMs()

	assert.Greater(t, after, before)
	assert.InDelta(t, 0.8*before+0.2*(before+1000), after, 1e-6)
}

func TestGetProfilesByCapability(t *testing.T) {
	m := capability.NewMap()
	mathProfiles := m.GetProfilesByCapability("math")
	require.NotEmpty(t, mathProfiles)
	for _, p := range mathProfiles {
		assert.True(t, p.Capabilities["math"])
	}
}

func TestAliasResolutionIsSingleHop(t *testing.T) {
	m := capability.NewMap()
	m.AddAlias("best", "gpt-4o")
	assert.Equal(t, "gpt-4o", m.ResolveAlias("best"))
	assert.Equal(t, "unregistered-name", m.ResolveAlias("unregistered-name"))
}

func TestLatencyHistoryCapsAt100(t *testing.T) {
	m := capability.NewMap()
	for i := 0; i < 50; i++ {
		m.UpdateLatency("openai", "gpt-4o", 1000)
	}
	for i := 0; i < 100; i++ {
		m.UpdateLatency("openai", "gpt-4o", 100)
	}
	pct, ok := m.GetLatencyPercentiles("openai", "gpt-4o")
	require.True(t, ok)
	assert.InDelta(t, 100, pct.P50, 1e-6)
	assert.InDelta(t, 100, pct.P99, 1e-6)
}
