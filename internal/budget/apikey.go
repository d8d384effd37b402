// Package budget implements API-key issuance, monthly budget enforcement,
// and the sliding-window request/token rate limiter.
package budget

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ApiKeyRecord is one issued API key and its accounting state.
type ApiKeyRecord struct {
	ID                     string
	Name                   string
	Enabled                bool
	CreatedAt              time.Time
	MonthlyTokenBudget     *int64
	MonthlyCostBudgetUSD   *float64
	RateLimitRPM           *int
	RateLimitTPM           *int
	TokensUsedThisMonth    int64
	CostUsedThisMonthUSD   float64
	currentMonth           string
}

// CreateOptions configures a new key.
type CreateOptions struct {
	Name                 string
	MonthlyTokenBudget   *int64
	MonthlyCostBudgetUSD *float64
	RateLimitRPM         *int
	RateLimitTPM         *int
}

// Store holds issued API keys, keyed by their opaque id, in creation order.
type Store struct {
	mu      sync.Mutex
	env     string
	order   []string
	records map[string]*ApiKeyRecord
}

// NewStore builds an empty key store. env is embedded in minted ids
// ("gw-{env}-{16 hex chars cut from a random uuid}") so keys are visually distinguishable across
// deployments.
func NewStore(env string) *Store {
	return &Store{env: env, records: make(map[string]*ApiKeyRecord)}
}

func nanoID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func currentMonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Create mints a fresh opaque key and stores its record.
func (s *Store) Create(opts CreateOptions) *ApiKeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := fmt.Sprintf("gw-%s-%s", s.env, nanoID())
	rec := &ApiKeyRecord{
		ID:                   id,
		Name:                 opts.Name,
		Enabled:              true,
		CreatedAt:            now,
		MonthlyTokenBudget:   opts.MonthlyTokenBudget,
		MonthlyCostBudgetUSD: opts.MonthlyCostBudgetUSD,
		RateLimitRPM:         opts.RateLimitRPM,
		RateLimitTPM:         opts.RateLimitTPM,
		currentMonth:         currentMonthKey(now),
	}
	s.records[id] = rec
	s.order = append(s.order, id)
	return rec
}

// Validate returns the record for key iff present and enabled, resetting
// its monthly counters if this is the first access in a new calendar month.
func (s *Store) Validate(key string) (*ApiKeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.Enabled {
		return nil, false
	}

	month := currentMonthKey(time.Now())
	if rec.currentMonth != month {
		rec.currentMonth = month
		rec.TokensUsedThisMonth = 0
		rec.CostUsedThisMonthUSD = 0
	}
	return rec, true
}

// RecordUsage adds token/cost deltas to a key's monthly counters.
func (s *Store) RecordUsage(id string, tokens int64, costUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.TokensUsedThisMonth += tokens
		rec.CostUsedThisMonthUSD += costUSD
	}
}

// Revoke disables a key.
func (s *Store) Revoke(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return false
	}
	rec.Enabled = false
	return true
}

// List returns every record in creation order.
func (s *Store) List() []*ApiKeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ApiKeyRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}
