package config

import (
	"strings"
	"time"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/notify"
	redisclient "github.com/vietddude/buywatch/internal/infra/redis"
	"github.com/vietddude/buywatch/internal/infra/storage/postgres"
)

// Storage backends for the registry and the cursors.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notifier kinds.
const (
	NotifierTelegram = "telegram"
	NotifierLog      = "log"
)

// Price sources.
const (
	PriceCoinGecko = "coingecko"
	PriceBinance   = "binance"
	PriceStatic    = "static"
	// PriceChain tries CoinGecko, then Binance.
	PriceChain = "chain"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig          `yaml:"server"`
	Logging  LoggingConfig         `yaml:"logging"`
	Storage  string                `yaml:"storage"`
	Notifier string                `yaml:"notifier"` // comma separated, e.g. "telegram,log"
	Chains   []ChainConfig         `yaml:"chains"`
	Registry RegistryConfig        `yaml:"registry"`
	Cursor   CursorConfig          `yaml:"cursor"`
	Price    PriceConfig           `yaml:"price"`
	Alerts   alert.Config          `yaml:"alerts"`
	Telegram notify.TelegramConfig `yaml:"telegram"`
	Redis    redisclient.Config    `yaml:"redis"`
	Database postgres.Config       `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds settings for one monitored chain.
type ChainConfig struct {
	ID                domain.Chain      `yaml:"id"`
	Endpoints         []string          `yaml:"endpoints"` // primary first, fallbacks after
	WSURL             string            `yaml:"ws_url"`
	PollInterval      time.Duration     `yaml:"poll_interval"`
	MaxBlocksPerCycle uint64            `yaml:"max_blocks_per_cycle"`
	RPCTimeout        time.Duration     `yaml:"rpc_timeout"`
	Backoff           BackoffConfig     `yaml:"backoff"`
	Routers           map[string]string `yaml:"routers"` // address -> venue name, added to the built-in table
	WrappedNative     string            `yaml:"wrapped_native"`
	FallbackPriceUSD  float64           `yaml:"fallback_price_usd"`
	Explorer          alert.Links       `yaml:"explorer"`
	Disabled          bool              `yaml:"disabled"`
}

// BackoffConfig bounds the retry delay after adapter errors.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// RegistryConfig configures the token registry.
type RegistryConfig struct {
	Path           string        `yaml:"path"`
	ReloadInterval time.Duration `yaml:"reload_interval"` // 0 disables reloading
}

// CursorConfig configures cursor persistence.
type CursorConfig struct {
	Path string `yaml:"path"`
}

// PriceConfig configures native price lookups.
type PriceConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	Source       string        `yaml:"source"`
	Timeout      time.Duration `yaml:"timeout"`
	CoinGeckoURL string        `yaml:"coingecko_url"`
	BinanceURL   string        `yaml:"binance_url"`
}

// chainDefaults are applied per chain when a value is missing.
var chainDefaults = map[domain.Chain]ChainConfig{
	domain.ChainEVMMainnet:   {PollInterval: 12 * time.Second, MaxBlocksPerCycle: 20},
	domain.ChainEVMSidechain: {PollInterval: 3 * time.Second, MaxBlocksPerCycle: 50},
	domain.ChainSolana:       {PollInterval: 2 * time.Second, MaxBlocksPerCycle: 20},
}

// EnabledChains returns the chains that are not disabled.
func (c *AppConfig) EnabledChains() []ChainConfig {
	out := make([]ChainConfig, 0, len(c.Chains))
	for _, ch := range c.Chains {
		if !ch.Disabled {
			out = append(out, ch)
		}
	}
	return out
}

// Notifiers returns the configured notifier kinds in order.
func (c *AppConfig) Notifiers() []string {
	var out []string
	for _, n := range strings.Split(c.Notifier, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Chain returns the configuration of id.
func (c *AppConfig) Chain(id domain.Chain) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}
