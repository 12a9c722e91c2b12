// Package routing handles provider ordering, circuit breaking and retries.
//
// This package contains:
//   - Router: ordered provider list with a per-provider circuit breaker
//   - Retry: error classification and exponential backoff
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/infra/rpc/provider"
)

const (
	// DefaultFailureThreshold opens the circuit after this many consecutive failures.
	DefaultFailureThreshold = 5
	// DefaultCircuitCooldown is how long an open circuit rejects calls.
	DefaultCircuitCooldown = 30 * time.Second
)

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	openedAt         time.Time
	circuitOpen      bool
}

// ProviderState is a read-only view of a provider's routing state.
type ProviderState struct {
	Name             string        `json:"name"`
	Status           string        `json:"status"`
	CircuitOpen      bool          `json:"circuit_open"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	Successes        int           `json:"successes"`
	Failures         int           `json:"failures"`
	AvgLatency       time.Duration `json:"avg_latency"`
}

// Router keeps providers in configured order. Earlier providers are preferred;
// a provider whose circuit is open is skipped until its cooldown passes.
type Router struct {
	mu               sync.RWMutex
	providers        []provider.Provider
	health           map[string]*providerMetrics
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewRouter creates a router over providers in priority order.
func NewRouter(providers ...provider.Provider) *Router {
	r := &Router{
		health:           make(map[string]*providerMetrics),
		failureThreshold: DefaultFailureThreshold,
		cooldown:         DefaultCircuitCooldown,
		now:              time.Now,
	}
	for _, p := range providers {
		r.AddProvider(p)
	}
	return r
}

// SetCircuitBreaker overrides the failure threshold and cooldown.
func (r *Router) SetCircuitBreaker(threshold int, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if threshold > 0 {
		r.failureThreshold = threshold
	}
	if cooldown > 0 {
		r.cooldown = cooldown
	}
}

// AddProvider appends a provider at the lowest priority.
func (r *Router) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.health[p.Name()] = &providerMetrics{lastSuccessAt: r.now()}
}

// Candidates returns providers to try for one call, in order.
// Providers with an open circuit or a throttled monitor are moved to the end
// so that a call still has somewhere to go when everything is unhealthy.
func (r *Router) Candidates() []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ready := make([]provider.Provider, 0, len(r.providers))
	var parked []provider.Provider

	for _, p := range r.providers {
		m := r.health[p.Name()]
		if m.circuitOpen && now.Sub(m.openedAt) >= r.cooldown {
			// Half-open: allow one probe.
			m.circuitOpen = false
			m.consecutiveFails = r.failureThreshold - 1
		}
		if m.circuitOpen || !p.IsAvailable() {
			parked = append(parked, p)
			continue
		}
		ready = append(ready, p)
	}
	return append(ready, parked...)
}

// Providers returns all providers in configured order.
func (r *Router) Providers() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]provider.Provider, len(r.providers))
	copy(result, r.providers)
	return result
}

// RecordSuccess records a successful call.
func (r *Router) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.health[providerName]
	if !ok {
		return
	}
	m.successCount++
	m.totalLatency += latency
	m.lastSuccessAt = r.now()
	m.consecutiveFails = 0
	m.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *Router) RecordFailure(providerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.health[providerName]
	if !ok {
		return
	}
	m.failureCount++
	m.lastFailureAt = r.now()
	m.consecutiveFails++

	if m.consecutiveFails >= r.failureThreshold && !m.circuitOpen {
		m.circuitOpen = true
		m.openedAt = m.lastFailureAt
	}
}

// States returns routing state of all providers.
func (r *Router) States() []ProviderState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderState, 0, len(r.providers))
	for _, p := range r.providers {
		m := r.health[p.Name()]
		st := ProviderState{
			Name:             p.Name(),
			CircuitOpen:      m.circuitOpen,
			ConsecutiveFails: m.consecutiveFails,
			Successes:        m.successCount,
			Failures:         m.failureCount,
			Status:           "healthy",
		}
		if m.successCount > 0 {
			st.AvgLatency = m.totalLatency / time.Duration(m.successCount)
		}
		if h := p.Health(); h.MonitorStats != nil {
			st.Status = h.MonitorStats.Status.String()
		}
		if m.circuitOpen {
			st.Status = "circuit_open"
		}
		out = append(out, st)
	}
	return out
}
