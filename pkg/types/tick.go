package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single top-of-book update from one exchange, normalized for the
// pipeline. Prices and volumes are decimals end-to-end; no float intermediates.
type Tick struct {
	Exchange        string           `json:"exchange"`
	Symbol          string           `json:"symbol"`
	BestBid         decimal.Decimal  `json:"bestBid"`
	BestAsk         decimal.Decimal  `json:"bestAsk"`
	QuoteVolume24h  decimal.Decimal  `json:"quoteVolume24h"`
	SpreadPercent   decimal.Decimal  `json:"spreadPercent"`
	MinVolume       decimal.Decimal  `json:"minVolume"`
	MaxVolume       decimal.Decimal  `json:"maxVolume"`
	LocalTimestamp  time.Time        `json:"localTimestamp"`
	ServerTimestamp *decimal.Decimal `json:"serverTimestamp,omitempty"`
}

// SymbolInfo holds per-exchange trading-pair metadata collected once at startup.
type SymbolInfo struct {
	Exchange     string          `json:"exchange"`
	Symbol       string          `json:"symbol"`
	PriceStep    decimal.Decimal `json:"priceStep"`
	QuantityStep decimal.Decimal `json:"quantityStep"`
	MinNotional  decimal.Decimal `json:"minNotional"`
}

// Ticker is a 24h rolling statistic used for symbol admission.
type Ticker struct {
	Symbol         string          `json:"symbol"`
	QuoteVolume24h decimal.Decimal `json:"quoteVolume24h"`
}

var symbolReplacer = strings.NewReplacer("/", "", "-", "", "_", "", " ", "")

// NormalizeSymbol strips slashes, dashes, underscores and spaces so that
// "BTC/USDT", "BTC-USDT" and "BTC_USDT" all map to "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	return symbolReplacer.Replace(symbol)
}

var hundred = decimal.NewFromInt(100)

// IntraSpreadPercent returns (ask-bid)/ask*100 for a single exchange book.
// Returns zero when ask is not positive.
func IntraSpreadPercent(bid, ask decimal.Decimal) decimal.Decimal {
	if !ask.IsPositive() {
		return decimal.Zero
	}
	return ask.Sub(bid).Div(ask).Mul(hundred)
}
