package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksScanned tracks total blocks scanned per chain
	BlocksScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_blocks_scanned_total",
			Help: "Total number of blocks scanned",
		},
		[]string{"chain"},
	)

	// SkippedSlots counts empty Solana slots
	SkippedSlots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_skipped_slots_total",
			Help: "Total number of skipped slots",
		},
		[]string{"chain"},
	)

	// DecodeErrors counts transactions the classifier could not decode
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_decode_errors_total",
			Help: "Total number of transactions skipped due to decode errors",
		},
		[]string{"chain"},
	)

	// Candidates tracks buy candidates by classifier rule
	Candidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_candidates_total",
			Help: "Total number of buy candidates detected",
		},
		[]string{"chain", "confidence"},
	)

	// AlertsTotal tracks alert outcomes: sent, fallback, failed, deduped, below_threshold, rate_limited
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_alerts_total",
			Help: "Alert delivery outcomes",
		},
		[]string{"chain", "outcome"},
	)

	// RPCCallsTotal tracks RPC calls per chain and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buywatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider", "method"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatch_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// CursorHeight tracks the last fully processed height
	CursorHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatch_cursor_height",
			Help: "Last fully processed block height",
		},
		[]string{"chain"},
	)

	// PollerState exposes the poller state as a one-hot gauge
	PollerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatch_poller_state",
			Help: "Current poller state (1 = active)",
		},
		[]string{"chain", "state"},
	)

	// PriceSourceErrors counts failed native price lookups
	PriceSourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatch_price_source_errors_total",
			Help: "Total number of failed price lookups",
		},
		[]string{"chain", "source"},
	)

	// NativePriceUSD is the last native price used for estimation
	NativePriceUSD = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatch_native_price_usd",
			Help: "Native coin price in USD used for estimation",
		},
		[]string{"chain"},
	)

	// TrackedTokens is the number of tokens in the registry
	TrackedTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatch_tracked_tokens",
			Help: "Number of tracked tokens",
		},
		[]string{"chain"},
	)

	// RPCProviderUp is 1 while a provider's circuit is closed
	RPCProviderUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatch_rpc_provider_up",
			Help: "Whether an RPC provider is currently routable",
		},
		[]string{"chain", "provider"},
	)

	// DBConnectionPoolUsage tracks the ratio of in-use connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buywatch_db_connection_pool_usage",
			Help: "Ratio of in-use database connections",
		},
	)
)
