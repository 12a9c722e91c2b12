package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// DefaultBinanceURL is the public spot API base.
const DefaultBinanceURL = "https://api.binance.com"

var binanceSymbols = map[domain.Chain]string{
	domain.ChainEVMMainnet:   "ETHUSDT",
	domain.ChainEVMSidechain: "BNBUSDT",
	domain.ChainSolana:       "SOLUSDT",
}

// Binance reads /api/v3/ticker/price. USDT is taken as USD.
type Binance struct {
	baseURL string
	client  *http.Client
}

// NewBinance creates a Binance source. An empty baseURL uses the public API.
func NewBinance(baseURL string, timeout time.Duration) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

func (b *Binance) Name() string { return "binance" }

type binanceTicker struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func (b *Binance) GetNativePriceUSD(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	symbol, ok := binanceSymbols[chain]
	if !ok {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: b.Name(), Err: errNoPrice}
	}

	resp, err := getJSON(ctx, b.client, b.baseURL+"/api/v3/ticker/price?symbol="+symbol)
	if err != nil {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	var t binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: b.Name(), Err: fmt.Errorf("decode: %w", err)}
	}
	if t.Symbol != symbol || !t.Price.IsPositive() {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: b.Name(), Err: errNoPrice}
	}
	return t.Price, nil
}
