package embedding_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/embedding"
)

func TestFallbackEmbedIsL2Normalized(t *testing.T) {
	vec := embedding.FallbackEmbed("hello world")

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestFallbackEmbedIsDeterministic(t *testing.T) {
	a := embedding.FallbackEmbed("The quick brown fox")
	b := embedding.FallbackEmbed("  the QUICK brown fox  ")
	assert.Equal(t, a, b)
}

func TestFallbackEmbedEmptyInputIsZeroVector(t *testing.T) {
	vec := embedding.FallbackEmbed("")
	for _, v := range vec {
		assert.Equal(t, 0.0, v)
	}
}

func TestCosineSimilarityOfVectorWithItselfIsOne(t *testing.T) {
	vec := embedding.FallbackEmbed("similarity self check")
	assert.InDelta(t, 1.0, embedding.CosineSimilarity(vec, vec), 1e-9)
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 2}
	assert.Equal(t, 0.0, embedding.CosineSimilarity(a, b))
}

func TestCosineSimilarityZeroNormIsZero(t *testing.T) {
	a := make([]float64, 10)
	b := embedding.FallbackEmbed("nonzero")
	assert.Equal(t, 0.0, embedding.CosineSimilarity(a, b))
}

func TestEmbedFallsBackWithoutUpstreamConfigured(t *testing.T) {
	svc := embedding.New("", "nomic-embed-text", nil)
	vec := svc.Embed(context.Background(), "no upstream configured")
	require.Len(t, vec, 384)
}
