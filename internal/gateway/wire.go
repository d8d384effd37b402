package gateway

import (
	"encoding/json"
	"net/http"
)

// GatewayMeta is the "x-gateway" metadata block attached to every chat
// completion response, documenting which provider actually served the
// request and how the decision was reached.
type GatewayMeta struct {
	Provider        string  `json:"provider"`
	RoutingDecision string  `json:"routing_decision"`
	LatencyMs       int64   `json:"latency_ms"`
	CostUSD         float64 `json:"cost_usd"`
	CacheHit        bool    `json:"cache_hit"`
	FallbackUsed    bool    `json:"fallback_used"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// attachGatewayMeta merges a GatewayMeta block into an already-marshaled
// OpenAI-shape response under "x-gateway", preserving every other field.
func attachGatewayMeta(body []byte, meta GatewayMeta) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return body
	}
	obj["x-gateway"] = metaRaw
	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}
