package gateway

import (
	"net/http"
	"time"

	"github.com/relaymesh/gateway/internal/apierrors"
	"github.com/relaymesh/gateway/internal/breaker"
)

// Health reports liveness from the last health-poller snapshot; it makes no
// upstream calls itself so it stays cheap enough for aggressive orchestrator
// probing. Returns 503 when no provider is currently healthy.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	statuses := s.Registry.GetProvidersStatus()
	details := make(map[string]interface{}, len(statuses))
	healthy := 0
	for name, st := range statuses {
		if st.Healthy {
			healthy++
		}
		entry := map[string]interface{}{"healthy": st.Healthy, "latency_ms": st.LatencyMs}
		if st.Message != "" {
			entry["message"] = st.Message
		}
		details[name] = entry
	}

	status := "ok"
	if healthy == 0 && len(statuses) > 0 {
		status = "unavailable"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	writeJSON(w, map[string]interface{}{
		"status": status,
		"providers": map[string]interface{}{
			"healthy": healthy,
			"total":   len(statuses),
			"details": details,
		},
		"infrastructure": map[string]interface{}{
			"cache":       s.Cache != nil,
			"persistence": s.AsyncLogger != nil,
		},
		"uptime":          s.Uptime().Seconds(),
		"active_requests": s.Tracker.Snapshot().ActiveRequests,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

// Models lists every model known across registered providers.
func (s *Server) Models(w http.ResponseWriter, r *http.Request) {
	models := s.Registry.GetAllModels()
	data := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]interface{}{
			"id": m.ID, "object": "model", "created": m.Created,
			"owned_by": m.OwnedBy, "provider": m.Provider,
			"permission": []interface{}{}, "root": m.ID, "parent": nil,
		})
	}
	writeJSON(w, map[string]interface{}{"object": "list", "data": data})
}

// Providers reports each provider's latest health snapshot.
func (s *Server) Providers(w http.ResponseWriter, r *http.Request) {
	status := s.Registry.GetProvidersStatus()
	out := make(map[string]interface{}, len(status))
	for name, st := range status {
		out[name] = map[string]interface{}{
			"healthy":    st.Healthy,
			"latency_ms": st.LatencyMs,
			"message":    st.Message,
			"last_check": st.LastCheck.Format(time.RFC3339),
			"models":     st.ModelCount,
		}
	}
	writeJSON(w, out)
}

// CacheStatsHandler reports the semantic cache's size/config snapshot plus the
// hit/miss accounting tracked separately in package metrics.
func (s *Server) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"cache":       s.Cache.GetStats(r.Context()),
		"accounting":  s.CacheStats.Snapshot(),
	})
}

// CacheInvalidate drops cache entries matching an optional "pattern" query
// parameter, or the entire cache when pattern is omitted.
func (s *Server) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	removed := s.Cache.Invalidate(r.Context(), pattern)
	writeJSON(w, map[string]interface{}{"removed": removed})
}

// CircuitBreakers reports every provider's breaker state.
func (s *Server) CircuitBreakers(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]interface{})
	for _, name := range s.Registry.GetHealthy() {
		out[name] = breakerSnapshotJSON(s.Breakers, name)
	}
	for _, a := range s.Registry.GetAll() {
		if _, ok := out[a.Name()]; !ok {
			out[a.Name()] = breakerSnapshotJSON(s.Breakers, a.Name())
		}
	}
	writeJSON(w, out)
}

func breakerSnapshotJSON(m *breaker.Manager, name string) map[string]interface{} {
	snap := m.Snapshot(name)
	return map[string]interface{}{
		"state":              m.GetState(name),
		"failure_count":      snap.FailureCount,
		"success_count":      snap.SuccessCount,
		"half_open_attempts": snap.HalfOpenAttempts,
	}
}

// Budget reports the caller's own monthly budget usage. Anonymous callers
// (no API key resolved) are rejected with a 401 authentication_error.
func (s *Server) Budget(w http.ResponseWriter, r *http.Request) {
	rec := apiKeyRecordFrom(r.Context())
	if rec == nil {
		writeErr(w, apierrors.New(apierrors.KindAuthentication, "an API key is required to view budget usage"))
		return
	}
	result := s.Enforcer.CheckBudget(rec)
	writeJSON(w, map[string]interface{}{
		"tokens_used_this_month": rec.TokensUsedThisMonth,
		"cost_used_this_month_usd": rec.CostUsedThisMonthUSD,
		"token_usage_percent":   result.TokenUsagePercent,
		"cost_usage_percent":    result.CostUsagePercent,
		"alert_threshold":       result.AlertThreshold,
	})
}

// Analytics reports the request tracker's rolling accounting snapshot.
func (s *Server) Analytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Tracker.Snapshot())
}
