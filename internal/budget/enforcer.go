package budget

import "sync/atomic"

// CheckResult is what the enforcer returns per call.
type CheckResult struct {
	Allowed          bool
	Reason           string
	TokenUsagePercent float64
	CostUsagePercent  float64
	AlertThreshold    *int
}

// Enforcer checks per-key budgets and accumulates process-wide usage
// against optional global caps.
type Enforcer struct {
	globalTokenBudget *int64
	globalCostBudget  *float64
	globalTokensUsed  int64
	globalCostMicros  int64 // cost accumulated in micro-dollars for atomic precision
}

// NewEnforcer builds an Enforcer. Either global cap may be nil to mean
// "no global limit".
func NewEnforcer(globalTokenBudget *int64, globalCostBudgetUSD *float64) *Enforcer {
	return &Enforcer{globalTokenBudget: globalTokenBudget, globalCostBudget: globalCostBudgetUSD}
}

// CheckBudget evaluates a key's monthly usage (and the enforcer's global
// counters) against its configured limits.
func (e *Enforcer) CheckBudget(rec *ApiKeyRecord) CheckResult {
	var tokenPct, costPct float64

	if rec.MonthlyTokenBudget != nil && *rec.MonthlyTokenBudget > 0 {
		tokenPct = 100 * float64(rec.TokensUsedThisMonth) / float64(*rec.MonthlyTokenBudget)
	}
	if rec.MonthlyCostBudgetUSD != nil && *rec.MonthlyCostBudgetUSD > 0 {
		costPct = 100 * rec.CostUsedThisMonthUSD / *rec.MonthlyCostBudgetUSD
	}

	allowed := true
	reason := ""

	if rec.MonthlyTokenBudget != nil && rec.TokensUsedThisMonth >= *rec.MonthlyTokenBudget {
		allowed = false
		reason = "monthly token budget exceeded"
	}
	if allowed && rec.MonthlyCostBudgetUSD != nil && rec.CostUsedThisMonthUSD >= *rec.MonthlyCostBudgetUSD {
		allowed = false
		reason = "monthly cost budget exceeded"
	}

	if allowed && e.globalTokenBudget != nil && atomic.LoadInt64(&e.globalTokensUsed) >= *e.globalTokenBudget {
		allowed = false
		reason = "global token budget exceeded"
	}
	if allowed && e.globalCostBudget != nil {
		globalCost := float64(atomic.LoadInt64(&e.globalCostMicros)) / 1e6
		if globalCost >= *e.globalCostBudget {
			allowed = false
			reason = "global cost budget exceeded"
		}
	}

	var alert *int
	switch {
	case tokenPct >= 95 || costPct >= 95:
		v := 95
		alert = &v
	case tokenPct >= 80 || costPct >= 80:
		v := 80
		alert = &v
	}

	return CheckResult{
		Allowed:           allowed,
		Reason:            reason,
		TokenUsagePercent: tokenPct,
		CostUsagePercent:  costPct,
		AlertThreshold:    alert,
	}
}

// RecordGlobalUsage accumulates process-wide token/cost counters.
func (e *Enforcer) RecordGlobalUsage(tokens int64, costUSD float64) {
	atomic.AddInt64(&e.globalTokensUsed, tokens)
	atomic.AddInt64(&e.globalCostMicros, int64(costUSD*1e6))
}
