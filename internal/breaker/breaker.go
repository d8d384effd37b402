// Package breaker implements the per-provider circuit breaker state
// machine that gates execution in the fallback chain.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three admission states a breaker can be in.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config is immutable per-breaker tuning.
type Config struct {
	FailureThreshold  int
	ResetTimeout      time.Duration
	HalfOpenMaxAttempts int
}

// DefaultConfig matches spec.md §3's defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxAttempts: 3,
	}
}

type breaker struct {
	mu                sync.Mutex
	cfg               Config
	state             State
	failureCount      int
	successCount      int
	lastFailureTime   time.Time
	halfOpenAttempts  int
}

func newBreaker(cfg Config) *breaker {
	return &breaker{cfg: cfg, state: Closed}
}

// getState returns the current state, first performing the lazy
// open→half_open transition if the reset timeout has elapsed
// (spec.md §4.6: "on next get_state() call").
func (b *breaker) getState(now time.Time) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && now.Sub(b.lastFailureTime) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.halfOpenAttempts = 0
		b.successCount = 0
	}
	return b.state
}

// admit reports whether a new call may be attempted, reserving an
// admission slot if the breaker is half_open.
func (b *breaker) admit(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && now.Sub(b.lastFailureTime) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.halfOpenAttempts = 0
		b.successCount = 0
	}
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.halfOpenAttempts >= b.cfg.HalfOpenMaxAttempts {
			return false
		}
		b.halfOpenAttempts++
		return true
	default: // Open
		return false
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenMaxAttempts {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenAttempts = 0
		}
	}
}

func (b *breaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureTime = now
	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = Open
			b.successCount = 0
			b.halfOpenAttempts = 0
		}
	case HalfOpen:
		b.state = Open
		b.successCount = 0
		b.halfOpenAttempts = 0
	}
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenAttempts = 0
}

func (b *breaker) snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		HalfOpenAttempts: b.halfOpenAttempts,
		LastFailureTime:  b.lastFailureTime,
	}
}

// Snapshot is a read-only view of one breaker's internal counters.
type Snapshot struct {
	State            State
	FailureCount     int
	SuccessCount     int
	HalfOpenAttempts int
	LastFailureTime  time.Time
}

// Manager holds one breaker per provider id, lazily created on first use.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*breaker
	now      func() time.Time
}

// NewManager builds a manager using cfg for every lazily-created breaker.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, breakers: make(map[string]*breaker), now: time.Now}
}

func (m *Manager) get(provider string) *breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[provider]
	if !ok {
		b = newBreaker(m.cfg)
		m.breakers[provider] = b
	}
	return b
}

// GetState returns the provider's current state, transitioning
// open→half_open if due.
func (m *Manager) GetState(provider string) State {
	return m.get(provider).getState(m.now())
}

// Admit reports whether provider may be attempted right now.
func (m *Manager) Admit(provider string) bool {
	return m.get(provider).admit(m.now())
}

// RecordSuccess records a successful call against provider's breaker.
func (m *Manager) RecordSuccess(provider string) {
	m.get(provider).recordSuccess()
}

// RecordFailure records a failed call against provider's breaker.
func (m *Manager) RecordFailure(provider string) {
	m.get(provider).recordFailure(m.now())
}

// Reset forces provider's breaker back to closed.
func (m *Manager) Reset(provider string) {
	m.get(provider).reset()
}

// Snapshot returns a read-only view of provider's breaker.
func (m *Manager) Snapshot(provider string) Snapshot {
	return m.get(provider).snapshot()
}

// GaugeValue maps a state to the Prometheus gauge convention spec.md §4.9
// specifies: 0=closed, 1=half-open, 2=open.
func GaugeValue(s State) float64 {
	switch s {
	case Closed:
		return 0
	case HalfOpen:
		return 1
	case Open:
		return 2
	default:
		return 0
	}
}
