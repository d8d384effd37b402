package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaymesh/gateway/internal/apierrors"
	"github.com/relaymesh/gateway/internal/budget"
	"github.com/relaymesh/gateway/internal/routing"
)

// createKeyRequest is the admin API's key-issuance payload.
type createKeyRequest struct {
	Name                 string   `json:"name"`
	MonthlyTokenBudget   *int64   `json:"monthly_token_budget,omitempty"`
	MonthlyCostBudgetUSD *float64 `json:"monthly_cost_budget_usd,omitempty"`
	RateLimitRPM         *int     `json:"rate_limit_rpm,omitempty"`
	RateLimitTPM         *int     `json:"rate_limit_tpm,omitempty"`
}

func keyRecordJSON(rec *budget.ApiKeyRecord) map[string]interface{} {
	return map[string]interface{}{
		"id": rec.ID, "name": rec.Name, "enabled": rec.Enabled, "created_at": rec.CreatedAt,
		"monthly_token_budget": rec.MonthlyTokenBudget, "monthly_cost_budget_usd": rec.MonthlyCostBudgetUSD,
		"rate_limit_rpm": rec.RateLimitRPM, "rate_limit_tpm": rec.RateLimitTPM,
		"tokens_used_this_month": rec.TokensUsedThisMonth, "cost_used_this_month_usd": rec.CostUsedThisMonthUSD,
	}
}

// AdminListKeys handles GET /api/admin/keys.
func (s *Server) AdminListKeys(w http.ResponseWriter, r *http.Request) {
	list := s.KeyStore.List()
	out := make([]map[string]interface{}, 0, len(list))
	for _, rec := range list {
		out = append(out, keyRecordJSON(rec))
	}
	writeJSON(w, map[string]interface{}{"data": out})
}

// AdminCreateKey handles POST /api/admin/keys.
func (s *Server) AdminCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}
	rec := s.KeyStore.Create(budget.CreateOptions{
		Name: req.Name, MonthlyTokenBudget: req.MonthlyTokenBudget, MonthlyCostBudgetUSD: req.MonthlyCostBudgetUSD,
		RateLimitRPM: req.RateLimitRPM, RateLimitTPM: req.RateLimitTPM,
	})
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, keyRecordJSON(rec))
}

// AdminRevokeKey handles DELETE /api/admin/keys/{key}.
func (s *Server) AdminRevokeKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.KeyStore.Revoke(key) {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "unknown key"))
		return
	}
	writeJSON(w, map[string]interface{}{"revoked": true})
}

type routingConfigView struct {
	DefaultStrategy string   `json:"default_strategy"`
	PreferLocal     bool     `json:"prefer_local"`
	FallbackChain   []string `json:"fallback_chain"`
}

// AdminGetRouting handles GET /api/admin/routing.
func (s *Server) AdminGetRouting(w http.ResponseWriter, r *http.Request) {
	cfg := s.RoutingCfg()
	writeJSON(w, routingConfigView{
		DefaultStrategy: string(cfg.DefaultStrategy),
		PreferLocal:     cfg.PreferLocal,
		FallbackChain:   cfg.FallbackChain,
	})
}

// AdminUpdateRouting handles PUT /api/admin/routing, replacing the live
// default strategy, local-preference flag, and fallback order in place.
func (s *Server) AdminUpdateRouting(w http.ResponseWriter, r *http.Request) {
	var view routingConfigView
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}
	strategy := routing.ParseStrategy(view.DefaultStrategy)
	if strategy == "" {
		strategy = routing.Balanced
	}

	cfg := s.RoutingCfg()
	cfg.DefaultStrategy = strategy
	cfg.PreferLocal = view.PreferLocal
	if view.FallbackChain != nil {
		cfg.FallbackChain = view.FallbackChain
	}
	s.SetRouting(routing.New(s.Registry, s.Caps, cfg), cfg)

	writeJSON(w, routingConfigView{
		DefaultStrategy: string(cfg.DefaultStrategy),
		PreferLocal:     cfg.PreferLocal,
		FallbackChain:   cfg.FallbackChain,
	})
}
