package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// DefaultCoinGeckoURL is the public API base.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

var coinGeckoIDs = map[domain.Chain]string{
	domain.ChainEVMMainnet:   "ethereum",
	domain.ChainEVMSidechain: "binancecoin",
	domain.ChainSolana:       "solana",
}

// CoinGecko reads /simple/price.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates a CoinGecko source. An empty baseURL uses the public API.
func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) GetNativePriceUSD(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	id, ok := coinGeckoIDs[chain]
	if !ok {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: c.Name(), Err: errNoPrice}
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")

	resp, err := getJSON(ctx, c.client, c.baseURL+"/simple/price?"+q.Encode())
	if err != nil {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: c.Name(), Err: fmt.Errorf("decode: %w", err)}
	}

	p, ok := payload[id]["usd"]
	if !ok || !p.IsPositive() {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: c.Name(), Err: errNoPrice}
	}
	return p, nil
}
