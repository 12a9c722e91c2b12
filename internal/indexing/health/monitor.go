package health

import (
	"context"
	"sort"
	"time"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/core/cursor"
	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/core/registry"
	"github.com/vietddude/buywatch/internal/indexing/poller"
)

// Thresholds for chain status.
const (
	degradedLag    = 10
	criticalLag    = 100
	criticalErrors = 10
)

// PollerStatus is implemented by *poller.Poller.
type PollerStatus interface {
	Status() poller.Status
}

// RegistryInfo is implemented by *registry.Registry.
type RegistryInfo interface {
	Count() int
	Dirty() bool
	Snapshot(chain domain.Chain) *registry.Snapshot
}

// AlertStats is implemented by *alert.Dispatcher.
type AlertStats interface {
	Stats() alert.Stats
	Dispatched() int64
}

// Throughput is implemented by cursor.Manager.
type Throughput interface {
	GetMetrics(chain domain.Chain) cursor.Metrics
}

// Pinger checks a storage backend. Implemented by *postgres.DB.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the pollers, the registry and the
// dispatcher.
type Monitor struct {
	pollers  []PollerStatus
	registry RegistryInfo
	alerts   AlertStats
	cursors  Throughput
	db       Pinger
	started  time.Time
}

// MonitorOption configures optional health sources.
type MonitorOption func(*Monitor)

// WithThroughput adds cursor throughput to each chain.
func WithThroughput(t Throughput) MonitorOption {
	return func(m *Monitor) { m.cursors = t }
}

// WithDatabase checks db on every detailed report.
func WithDatabase(db Pinger) MonitorOption {
	return func(m *Monitor) { m.db = db }
}

// NewMonitor creates a new health monitor.
func NewMonitor(pollers []PollerStatus, reg RegistryInfo, alerts AlertStats, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		pollers:  pollers,
		registry: reg,
		alerts:   alerts,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckHealth evaluates every chain.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ChainHealth {
	report := make(map[string]ChainHealth, len(m.pollers))
	for _, p := range m.pollers {
		st := p.Status()
		h := ChainHealth{
			Chain:             string(st.Chain),
			Status:            StatusHealthy,
			State:             st.State,
			Cursor:            st.Cursor,
			Head:              st.Head,
			ConsecutiveErrors: st.ConsecutiveErrors,
			LastError:         st.LastError,
		}
		if st.Lag > 0 {
			h.BlockLag = uint64(st.Lag)
		}
		if m.cursors != nil {
			cm := m.cursors.GetMetrics(st.Chain)
			h.BlocksPerSecond = cm.BlocksPerSecond
			h.LastAdvanceAt = cm.LastAdvanceAt
		}

		switch {
		case st.State == poller.StateStopped,
			h.BlockLag > criticalLag,
			st.ConsecutiveErrors >= criticalErrors:
			h.Status = StatusCritical
		case st.State == poller.StateIdle,
			h.BlockLag > degradedLag,
			st.ConsecutiveErrors > 0:
			h.Status = StatusDegraded
		}
		report[h.Chain] = h
	}
	return report
}

// Report builds the detailed health report. The worst chain wins; unsaved
// registry changes degrade the system.
func (m *Monitor) Report(ctx context.Context) HealthReport {
	chains := m.CheckHealth(ctx)
	r := HealthReport{SystemStatus: StatusHealthy, Chains: chains}

	for _, c := range chains {
		r.SystemStatus = worst(r.SystemStatus, c.Status)
	}
	if m.registry != nil {
		r.TrackedTokens = m.registry.Count()
		r.RegistryUnsaved = m.registry.Dirty()
		if r.RegistryUnsaved {
			r.SystemStatus = worst(r.SystemStatus, StatusDegraded)
		}
	}
	if m.alerts != nil {
		r.AlertsDispatched = m.alerts.Dispatched()
	}
	if m.db != nil {
		r.Database = "ok"
		if err := m.db.Health(ctx); err != nil {
			// Cursor and registry writes fail, scanning goes on from memory.
			r.Database = err.Error()
			r.SystemStatus = worst(r.SystemStatus, StatusDegraded)
		}
	}
	return r
}

// Status builds the operator status view.
func (m *Monitor) Status(ctx context.Context) StatusReport {
	s := StatusReport{
		Uptime:    time.Since(m.started).Truncate(time.Second).String(),
		StartedAt: m.started,
	}
	if m.registry != nil {
		s.TrackedTokens = m.registry.Count()
	}
	if m.alerts != nil {
		s.Alerts = m.alerts.Stats()
	}
	for _, p := range m.pollers {
		s.Pollers = append(s.Pollers, p.Status())
	}
	sort.Slice(s.Pollers, func(i, j int) bool { return s.Pollers[i].Chain < s.Pollers[j].Chain })
	return s
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
