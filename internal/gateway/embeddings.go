package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/relaymesh/gateway/internal/apierrors"
	"github.com/relaymesh/gateway/internal/provider"
)

func parseEmbeddingInput(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, apierrors.New(apierrors.KindInvalidRequest, "input must be a string or an array of strings")
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, apierrors.New(apierrors.KindInvalidRequest, "input must be a string or an array of strings")
	}
}

// Embeddings handles POST /v1/embeddings, vectorizing each input string
// through the same embedding service the semantic cache uses.
func (s *Server) Embeddings(w http.ResponseWriter, r *http.Request) {
	var req provider.EmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}
	if req.Model == "" {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "model is required"))
		return
	}
	inputs, err := parseEmbeddingInput(req.Input)
	if err != nil {
		writeErr(w, err.(*apierrors.Error))
		return
	}
	if len(inputs) == 0 {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "input must not be empty"))
		return
	}

	data := make([]provider.EmbeddingData, len(inputs))
	promptTokens := 0
	for i, text := range inputs {
		data[i] = provider.EmbeddingData{
			Object:    "embedding",
			Embedding: s.Embedder.Embed(r.Context(), text),
			Index:     i,
		}
		promptTokens += (len(text) + 3) / 4
	}

	writeJSON(w, provider.EmbeddingsResponse{
		Object: "list",
		Data:   data,
		Model:  req.Model,
		Usage: provider.Usage{
			PromptTokens: promptTokens,
			TotalTokens:  promptTokens,
		},
	})
}
