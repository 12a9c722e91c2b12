package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/infra/price"
)

// Load reads configuration from a YAML file, expands ${ENV} references,
// applies defaults and validates the result.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage == "" {
		c.Storage = StorageFile
	}
	if c.Notifier == "" {
		c.Notifier = NotifierTelegram
	}
	if c.Registry.Path == "" {
		c.Registry.Path = "data/registry.json"
	}
	if c.Cursor.Path == "" {
		c.Cursor.Path = "data/cursors.json"
	}

	if c.Price.TTL == 0 {
		c.Price.TTL = price.DefaultTTL
	}
	if c.Price.Source == "" {
		c.Price.Source = PriceChain
	}
	if c.Price.Timeout == 0 {
		c.Price.Timeout = 5 * time.Second
	}

	defaults := alert.DefaultConfig()
	if c.Alerts.MaxRetries == 0 {
		c.Alerts.MaxRetries = defaults.MaxRetries
	}
	if c.Alerts.RetryBackoff == 0 {
		c.Alerts.RetryBackoff = defaults.RetryBackoff
	}
	if c.Alerts.SendTimeout == 0 {
		c.Alerts.SendTimeout = defaults.SendTimeout
	}
	if c.Alerts.MaxPerTokenPerCycle == 0 {
		c.Alerts.MaxPerTokenPerCycle = defaults.MaxPerTokenPerCycle
	}
	if c.Alerts.MaxAlertsPerHour == 0 {
		c.Alerts.MaxAlertsPerHour = defaults.MaxAlertsPerHour
	}
	if c.Alerts.DedupeWindow == 0 {
		c.Alerts.DedupeWindow = defaults.DedupeWindow
	}

	for i := range c.Chains {
		ch := &c.Chains[i]
		d := chainDefaults[ch.ID]
		if ch.PollInterval == 0 {
			ch.PollInterval = d.PollInterval
		}
		if ch.MaxBlocksPerCycle == 0 {
			ch.MaxBlocksPerCycle = d.MaxBlocksPerCycle
		}
		if ch.RPCTimeout == 0 {
			ch.RPCTimeout = 10 * time.Second
		}
		if ch.Backoff.Initial == 0 {
			ch.Backoff.Initial = 2 * time.Second
		}
		if ch.Backoff.Max == 0 {
			ch.Backoff.Max = time.Minute
		}
		ch.Endpoints = compact(ch.Endpoints)
	}
}

// Validate checks the configuration for errors that would prevent startup.
func (c *AppConfig) Validate() error {
	var errs []error

	if len(c.EnabledChains()) == 0 {
		errs = append(errs, errors.New("no chains configured"))
	}
	seen := make(map[string]bool)
	for i, ch := range c.Chains {
		if !ch.ID.Valid() {
			errs = append(errs, fmt.Errorf("chains[%d]: unknown chain %q", i, ch.ID))
			continue
		}
		if seen[string(ch.ID)] {
			errs = append(errs, fmt.Errorf("chains[%d]: duplicate chain %s", i, ch.ID))
		}
		seen[string(ch.ID)] = true
		if !ch.Disabled && len(ch.Endpoints) == 0 {
			errs = append(errs, fmt.Errorf("chains[%d] %s: at least one endpoint is required", i, ch.ID))
		}
		if ch.FallbackPriceUSD < 0 {
			errs = append(errs, fmt.Errorf("chains[%d] %s: negative fallback price", i, ch.ID))
		}
		if ch.Backoff.Max < ch.Backoff.Initial {
			errs = append(errs, fmt.Errorf("chains[%d] %s: backoff max below initial", i, ch.ID))
		}
	}

	switch c.Storage {
	case StorageFile, StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("storage postgres requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}

	if len(c.Notifiers()) == 0 {
		errs = append(errs, errors.New("no notifier configured"))
	}
	for _, n := range c.Notifiers() {
		switch n {
		case NotifierLog:
		case NotifierTelegram:
			if c.Telegram.BotToken == "" {
				errs = append(errs, errors.New("notifier telegram requires telegram.bot_token"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notifier %q", n))
		}
	}

	switch c.Price.Source {
	case PriceCoinGecko, PriceBinance, PriceStatic, PriceChain:
	default:
		errs = append(errs, fmt.Errorf("unknown price source %q", c.Price.Source))
	}

	if c.Alerts.MaxRetries < 1 {
		errs = append(errs, errors.New("alerts.max_retries must be at least 1"))
	}
	perCycle, perHour := c.Alerts.MaxPerTokenPerCycle, c.Alerts.MaxAlertsPerHour
	if perCycle < -1 || perHour < -1 {
		errs = append(errs, errors.New("alert limits must be positive, or -1 to disable"))
	}
	// The hourly cap would cut every cycle short of its own limit.
	if perCycle > 0 && perHour > 0 && perCycle > perHour {
		errs = append(errs, fmt.Errorf("alerts.max_per_token_per_cycle (%d) exceeds alerts.max_alerts_per_hour (%d)", perCycle, perHour))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// compact drops empty endpoints, which appear when an optional ${ENV} is unset.
func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
