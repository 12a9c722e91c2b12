// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/indexing/poller"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth contains health metrics for one chain.
type ChainHealth struct {
	Chain             string       `json:"chain"`
	Status            SystemStatus `json:"status"`
	State             poller.State `json:"state"`
	Cursor            uint64       `json:"cursor"`
	Head              uint64       `json:"head"`
	BlockLag          uint64       `json:"block_lag"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
	LastError         string       `json:"last_error,omitempty"`
	BlocksPerSecond   float64      `json:"blocks_per_second,omitempty"`
	LastAdvanceAt     *time.Time   `json:"last_advance_at,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus     SystemStatus           `json:"system_status"`
	Chains           map[string]ChainHealth `json:"chains"`
	RegistryUnsaved  bool                   `json:"registry_unsaved"`
	TrackedTokens    int                    `json:"tracked_tokens"`
	AlertsDispatched int64                  `json:"alerts_dispatched"`
	Database         string                 `json:"database,omitempty"`
}

// StatusReport is the operator view served on /status.
type StatusReport struct {
	Uptime        string          `json:"uptime"`
	StartedAt     time.Time       `json:"started_at"`
	TrackedTokens int             `json:"tracked_tokens"`
	Alerts        alert.Stats     `json:"alerts"`
	Pollers       []poller.Status `json:"pollers"`
}
