package routing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/capability"
	"github.com/relaymesh/gateway/internal/routing"
)

func TestPresetWeightsSumToOne(t *testing.T) {
	for _, s := range []routing.Strategy{routing.Cost, routing.Quality, routing.Latency, routing.Balanced} {
		assert.InDelta(t, 1.0, routing.WeightsSum1(s), 1e-9)
	}
}

func TestDirectModelRequestScoresOne(t *testing.T) {
	reg, caps := healthyRegistry(t, "openai")
	r := routing.New(reg, caps, routing.Config{DefaultStrategy: routing.Balanced})

	decision, err := r.Route(routing.Request{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", decision.Provider)
	assert.Equal(t, "gpt-4o", decision.ModelID)
	assert.Equal(t, 1.0, decision.Score)
	assert.Contains(t, decision.Reasoning, "Direct model request")
}

func TestNoHealthyProvidersFails(t *testing.T) {
	caps := capability.NewMap()
	r := routing.New(newEmptyRegistry(), caps, routing.Config{DefaultStrategy: routing.Balanced})

	_, err := r.Route(routing.Request{Model: "auto"})
	assert.Error(t, err)
}

func TestScoreIsWithinUnitRange(t *testing.T) {
	reg, caps := healthyRegistry(t, "openai", "groq")
	r := routing.New(reg, caps, routing.Config{DefaultStrategy: routing.Balanced})

	decision, err := r.Route(routing.Request{Model: "auto"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, decision.Score, 0.0)
	assert.LessOrEqual(t, decision.Score, 1.0)
}
