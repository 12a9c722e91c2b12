package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/core/config"
	"github.com/vietddude/buywatch/internal/core/cursor"
	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/core/registry"
	"github.com/vietddude/buywatch/internal/indexing/classifier"
	"github.com/vietddude/buywatch/internal/indexing/health"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/indexing/poller"
	"github.com/vietddude/buywatch/internal/indexing/recovery"
	"github.com/vietddude/buywatch/internal/infra/chain"
	"github.com/vietddude/buywatch/internal/infra/chain/evm"
	"github.com/vietddude/buywatch/internal/infra/chain/heads"
	"github.com/vietddude/buywatch/internal/infra/chain/solana"
	"github.com/vietddude/buywatch/internal/infra/notify"
	"github.com/vietddude/buywatch/internal/infra/price"
	redisclient "github.com/vietddude/buywatch/internal/infra/redis"
	"github.com/vietddude/buywatch/internal/infra/rpc"
)

const shutdownTimeout = 15 * time.Second

// Watcher owns every long-running component of the service.
type Watcher struct {
	cfg         *config.AppConfig
	stores      *Stores
	ownsStores  bool
	registry    *registry.Registry
	cursors     *cursor.DefaultManager
	estimator   *price.Estimator
	dispatcher  *alert.Dispatcher
	pollers     []*poller.Poller
	subscribers []*heads.Subscriber
	clients     map[domain.Chain]*rpc.Client
	redis       *redisclient.Client
	monitor     *health.Monitor
	server      *health.Server
	log         *slog.Logger
}

type options struct {
	stores      *Stores
	notifier    notify.Notifier
	adapters    map[domain.Chain]chain.Adapter
	priceSource price.Source
}

// Option replaces a component built from config.
type Option func(*options)

// WithStores uses already opened stores. The watcher does not close them.
func WithStores(s *Stores) Option {
	return func(o *options) { o.stores = s }
}

// WithNotifier replaces the configured notifiers.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithAdapter replaces the RPC-backed adapter of a.Chain().
func WithAdapter(a chain.Adapter) Option {
	return func(o *options) { o.adapters[a.Chain()] = a }
}

// WithPriceSource replaces the configured price source.
func WithPriceSource(s price.Source) Option {
	return func(o *options) { o.priceSource = s }
}

// NewWatcher wires storage, the registry, one poller per enabled chain and
// the alert pipeline.
func NewWatcher(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Watcher, error) {
	o := options{adapters: make(map[domain.Chain]chain.Adapter)}
	for _, opt := range opts {
		opt(&o)
	}

	w := &Watcher{
		cfg:     cfg,
		clients: make(map[domain.Chain]*rpc.Client),
		log:     slog.Default().With("component", "watcher"),
	}

	// 1. Storage
	w.stores = o.stores
	if w.stores == nil {
		stores, err := OpenStores(ctx, cfg)
		if err != nil {
			return nil, err
		}
		w.stores = stores
		w.ownsStores = true
	}

	// 2. Registry and cursors
	w.registry = registry.New(w.stores.Registry)
	if err := w.registry.Load(ctx); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	w.cursors = cursor.NewManager(w.stores.Cursors)

	// 3. Shared Redis state, optional
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			w.log.Warn("Redis unavailable, using process-local dedupe and limits", "error", err)
		} else {
			w.redis = client
		}
	}

	// 4. Alert pipeline
	notifier, err := buildNotifier(cfg, o.notifier)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	w.estimator = w.buildEstimator(o.priceSource)
	w.dispatcher = w.buildDispatcher(notifier)

	// 5. Pollers
	cls := classifier.New()
	for _, ch := range cfg.EnabledChains() {
		adapter := o.adapters[ch.ID]
		if adapter == nil {
			client := rpc.NewClientFromURLs(ch.ID, ch.Endpoints, ch.RPCTimeout)
			w.clients[ch.ID] = client
			adapter = newAdapter(ch, client)
		}

		var popts []poller.Option
		if ch.WSURL != "" {
			sub := heads.NewSubscriber(ch.ID, ch.WSURL)
			w.subscribers = append(w.subscribers, sub)
			popts = append(popts, poller.WithWakeups(sub.Heads()))
		}

		p := poller.New(poller.Config{
			PollInterval:      ch.PollInterval,
			MaxBlocksPerCycle: ch.MaxBlocksPerCycle,
			Backoff: &recovery.ExponentialBackoff{
				InitialDelay: ch.Backoff.Initial,
				MaxDelay:     ch.Backoff.Max,
				Classifier:   recovery.Classify,
			},
		}, adapter, w.cursors, w.registry, cls, w.dispatcher, popts...)
		w.pollers = append(w.pollers, p)
		w.log.Info("Poller initialized", "chain", ch.ID, "endpoints", len(ch.Endpoints), "ws", ch.WSURL != "")
	}

	// 6. Health
	statuses := make([]health.PollerStatus, len(w.pollers))
	for i, p := range w.pollers {
		statuses[i] = p
	}
	mopts := []health.MonitorOption{health.WithThroughput(w.cursors)}
	if w.stores.DB != nil {
		mopts = append(mopts, health.WithDatabase(w.stores.DB))
	}
	w.monitor = health.NewMonitor(statuses, w.registry, w.dispatcher, mopts...)
	w.server = health.NewServer(w.monitor, w.dispatcher, cfg.Server.Port)

	return w, nil
}

func newAdapter(ch config.ChainConfig, client chain.Caller) chain.Adapter {
	if ch.ID == domain.ChainSolana {
		return solana.NewAdapter(client, solana.WithPrograms(ch.Routers))
	}
	return evm.NewAdapter(ch.ID, client,
		evm.WithRouters(ch.Routers),
		evm.WithWrappedNative(ch.WrappedNative),
	)
}

func buildNotifier(cfg *config.AppConfig, override notify.Notifier) (notify.Notifier, error) {
	if override != nil {
		return override, nil
	}
	var out []notify.Notifier
	for _, kind := range cfg.Notifiers() {
		switch kind {
		case config.NotifierTelegram:
			tg, err := notify.NewTelegram(cfg.Telegram)
			if err != nil {
				return nil, fmt.Errorf("failed to init telegram: %w", err)
			}
			out = append(out, tg)
		case config.NotifierLog:
			out = append(out, notify.NewLog())
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return notify.NewMulti(out...), nil
}

func (w *Watcher) buildEstimator(override price.Source) *price.Estimator {
	fallbacks := make(map[domain.Chain]decimal.Decimal)
	for _, ch := range w.cfg.Chains {
		if ch.FallbackPriceUSD > 0 {
			fallbacks[ch.ID] = decimal.NewFromFloat(ch.FallbackPriceUSD)
		}
	}

	source := override
	if source == nil {
		pc := w.cfg.Price
		switch pc.Source {
		case config.PriceCoinGecko:
			source = price.NewCoinGecko(pc.CoinGeckoURL, pc.Timeout)
		case config.PriceBinance:
			source = price.NewBinance(pc.BinanceURL, pc.Timeout)
		case config.PriceStatic:
			source = price.NewStaticSource(fallbacks)
		default:
			source = price.NewChainSource(
				price.NewCoinGecko(pc.CoinGeckoURL, pc.Timeout),
				price.NewBinance(pc.BinanceURL, pc.Timeout),
			)
		}
	}

	opts := []price.Option{
		price.WithTTL(w.cfg.Price.TTL),
		price.WithLookupTimeout(w.cfg.Price.Timeout),
		price.WithFallbackPrices(fallbacks),
	}
	if w.redis != nil {
		opts = append(opts, price.WithSharedCache(redisclient.NewPriceCache(w.redis)))
	}
	return price.NewEstimator(source, opts...)
}

func (w *Watcher) buildDispatcher(notifier notify.Notifier) *alert.Dispatcher {
	links := make(map[domain.Chain]alert.Links)
	for _, ch := range w.cfg.Chains {
		links[ch.ID] = ch.Explorer
	}

	opts := []alert.Option{
		alert.WithFormatter(alert.NewFormatter(links)),
		alert.WithSubscriptions(w.registry),
	}
	if w.redis != nil {
		local := alert.NewMemoryDedupe(w.cfg.Alerts.DedupeWindow)
		opts = append(opts,
			alert.WithDedupe(alert.NewLayeredDedupe(local, redisclient.NewDedupe(w.redis, w.cfg.Redis.DedupeTTL))),
			alert.WithHourlyLimiter(redisclient.NewHourlyLimiter(w.redis, w.cfg.Alerts.MaxAlertsPerHour, time.Hour)),
		)
	}
	return alert.NewDispatcher(w.cfg.Alerts, w.estimator, notifier, opts...)
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails. Cursors are already committed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.server.Start(); err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return w.server.Stop(shutdownCtx)
	})

	if interval := w.cfg.Registry.ReloadInterval; interval > 0 {
		g.Go(func() error {
			w.registry.RunReloader(gctx, interval)
			return nil
		})
	}

	if w.stores.DB != nil {
		w.stores.DB.StartMetricsCollector(gctx)
	}

	for _, sub := range w.subscribers {
		g.Go(func() error {
			// Polling continues without push notifications.
			if err := sub.Run(gctx); err != nil {
				w.log.Warn("Head subscription stopped", "error", err)
			}
			return nil
		})
	}

	for _, p := range w.pollers {
		g.Go(func() error {
			w.log.Info("Starting poller", "chain", p.Chain())
			if err := p.Run(gctx); err != nil {
				return fmt.Errorf("poller %s: %w", p.Chain(), err)
			}
			return nil
		})
	}

	if len(w.clients) > 0 {
		g.Go(func() error {
			w.runMetricsUpdater(gctx)
			return nil
		})
	}

	w.log.Info("Watcher started", "chains", len(w.pollers), "tokens", w.registry.Count())
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.log.Info("Watcher stopped", "alerts_sent", w.dispatcher.Stats().Sent)
	return err
}

// Close releases connections opened by NewWatcher.
func (w *Watcher) Close() error {
	var errs []error
	if w.redis != nil {
		if err := w.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if w.ownsStores && w.stores != nil {
		if err := w.stores.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stores: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Registry returns the token registry.
func (w *Watcher) Registry() *registry.Registry {
	return w.registry
}

// Dispatcher returns the alert dispatcher.
func (w *Watcher) Dispatcher() *alert.Dispatcher {
	return w.dispatcher
}

// Monitor returns the health monitor.
func (w *Watcher) Monitor() *health.Monitor {
	return w.monitor
}

// Handler returns the HTTP routes of the health server.
func (w *Watcher) Handler() http.Handler {
	return w.server.Handler()
}

func (w *Watcher) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for id, client := range w.clients {
				for _, st := range client.Router().States() {
					up := 1.0
					if st.CircuitOpen {
						up = 0
					}
					metrics.RPCProviderUp.WithLabelValues(string(id), st.Name).Set(up)
				}
			}
		}
	}
}
