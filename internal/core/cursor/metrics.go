package cursor

import (
	"time"
)

// blockRecord holds timing data for a committed height.
type blockRecord struct {
	Height      uint64
	ProcessedAt time.Time
}

// Metrics holds cursor throughput data.
type Metrics struct {
	BlocksPerSecond  float64
	AverageBlockTime time.Duration
	LastAdvanceAt    *time.Time
}

// MetricsCollector tracks cursor progress over time.
type MetricsCollector struct {
	windowSize int           // number of commits to track
	blockTimes []blockRecord // sliding window of commits
}

// RecordBlock records that the cursor reached height at processedAt.
func (mc *MetricsCollector) RecordBlock(height uint64, processedAt time.Time) {
	record := blockRecord{Height: height, ProcessedAt: processedAt}

	if len(mc.blockTimes) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.blockTimes, mc.blockTimes[1:])
		mc.blockTimes[len(mc.blockTimes)-1] = record
	} else {
		mc.blockTimes = append(mc.blockTimes, record)
	}
}

// GetMetrics returns current metrics. A commit may cover several blocks, so
// the rate is computed from heights rather than from the number of commits.
func (mc *MetricsCollector) GetMetrics() Metrics {
	var m Metrics
	if len(mc.blockTimes) == 0 {
		return m
	}

	last := mc.blockTimes[len(mc.blockTimes)-1]
	at := last.ProcessedAt
	m.LastAdvanceAt = &at

	if len(mc.blockTimes) >= 2 {
		first := mc.blockTimes[0]
		duration := last.ProcessedAt.Sub(first.ProcessedAt)
		blocks := float64(last.Height - first.Height)

		if duration > 0 && blocks > 0 {
			m.BlocksPerSecond = blocks / duration.Seconds()
			m.AverageBlockTime = time.Duration(float64(duration) / blocks)
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.blockTimes = mc.blockTimes[:0]
}
