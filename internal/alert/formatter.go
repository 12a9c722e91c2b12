package alert

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/notify"
)

// Links holds URL templates for one chain. Each takes one %s argument:
// the transaction id for Explorer, the token address for Chart and Swap.
type Links struct {
	Explorer string `yaml:"explorer"`
	Chart    string `yaml:"chart"`
	Swap     string `yaml:"swap"`
}

// DefaultLinks are the public explorers and swap UIs per chain.
var DefaultLinks = map[domain.Chain]Links{
	domain.ChainEVMMainnet: {
		Explorer: "https://etherscan.io/tx/%s",
		Chart:    "https://dexscreener.com/ethereum/%s",
		Swap:     "https://app.uniswap.org/#/swap?outputCurrency=%s",
	},
	domain.ChainEVMSidechain: {
		Explorer: "https://bscscan.com/tx/%s",
		Chart:    "https://dexscreener.com/bsc/%s",
		Swap:     "https://pancakeswap.finance/swap?outputCurrency=%s",
	},
	domain.ChainSolana: {
		Explorer: "https://solscan.io/tx/%s",
		Chart:    "https://dexscreener.com/solana/%s",
		Swap:     "https://jup.ag/swap/SOL-%s",
	},
}

// Formatter renders candidates as chat messages.
type Formatter struct {
	links map[domain.Chain]Links
}

// NewFormatter creates a formatter. Overrides replace non-empty templates.
func NewFormatter(overrides map[domain.Chain]Links) *Formatter {
	links := make(map[domain.Chain]Links, len(DefaultLinks))
	for c, l := range DefaultLinks {
		links[c] = l
	}
	for c, o := range overrides {
		l := links[c]
		if o.Explorer != "" {
			l.Explorer = o.Explorer
		}
		if o.Chart != "" {
			l.Chart = o.Chart
		}
		if o.Swap != "" {
			l.Swap = o.Swap
		}
		links[c] = l
	}
	return &Formatter{links: links}
}

func (f *Formatter) url(tmpl, arg string) string {
	if tmpl == "" {
		return ""
	}
	return fmt.Sprintf(tmpl, arg)
}

// Rich renders the HTML alert with link buttons.
func (f *Formatter) Rich(c domain.Candidate, usd decimal.Decimal) notify.Message {
	l := f.links[c.Chain]
	txURL := f.url(l.Explorer, c.TxID)
	chartURL := f.url(l.Chart, c.Token.Address)
	swapURL := f.url(l.Swap, c.Token.Address)

	symbol := displaySymbol(c.Token)
	name := c.Token.Name
	if name == "" {
		name = symbol
	}

	var b strings.Builder
	if c.Test {
		b.WriteString("🧪 <i>Test alert</i>\n")
	}
	fmt.Fprintf(&b, "🚀 <b>%s BUY ALERT</b> 🚀\n\n", html.EscapeString(strings.ToUpper(symbol)))
	if chartURL != "" {
		fmt.Fprintf(&b, "🪙 <b>Token:</b> %s (<a href='%s'>$%s</a>)\n",
			html.EscapeString(name), html.EscapeString(chartURL), html.EscapeString(symbol))
	} else {
		fmt.Fprintf(&b, "🪙 <b>Token:</b> %s ($%s)\n", html.EscapeString(name), html.EscapeString(symbol))
	}
	fmt.Fprintf(&b, "📜 <b>Contract:</b>\n<code>%s</code>\n", html.EscapeString(c.Token.Address))
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s %s (~$%s)\n",
		c.NativeAmount.StringFixed(4), c.Chain.NativeSymbol(), usd.StringFixed(2))
	if c.TokenAmount.IsPositive() {
		fmt.Fprintf(&b, "🎯 <b>Got:</b> %s %s\n", c.TokenAmount.StringFixed(2), html.EscapeString(symbol))
	}
	if c.Venue != "" {
		fmt.Fprintf(&b, "🌐 <b>DEX:</b> %s\n", html.EscapeString(c.Venue))
	}
	if c.Confidence == domain.ConfidenceCalldata {
		b.WriteString("⚠️ <i>Unverified route: matched by call data</i>\n")
	}
	if txURL != "" {
		fmt.Fprintf(&b, "\n🔍 <b>Transaction:</b> <a href='%s'>View TX</a>", html.EscapeString(txURL))
	}

	var buttons []notify.Button
	if chartURL != "" {
		buttons = append(buttons, notify.Button{Text: "📊 Chart", URL: chartURL})
	}
	if txURL != "" && !c.Test {
		buttons = append(buttons, notify.Button{Text: "🔎 Transaction", URL: txURL})
	}
	if swapURL != "" {
		buttons = append(buttons, notify.Button{Text: "💱 Swap", URL: swapURL})
	}

	return notify.Message{Text: b.String(), ParseMode: notify.ParseModeHTML, Buttons: buttons}
}

// Plain renders the minimal fallback message without markup or buttons.
func (f *Formatter) Plain(c domain.Candidate) notify.Message {
	venue := c.Venue
	if venue == "" {
		venue = "DEX"
	}
	text := fmt.Sprintf("🚨 Buy Alert: %s %s of %s on %s",
		c.NativeAmount.StringFixed(4), c.Chain.NativeSymbol(), displaySymbol(c.Token), venue)
	return notify.Message{Text: text, ParseMode: notify.ParseModeNone}
}

func displaySymbol(t domain.TrackedToken) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	if len(t.Address) > 10 {
		return t.Address[:6] + "…" + t.Address[len(t.Address)-4:]
	}
	return t.Address
}
