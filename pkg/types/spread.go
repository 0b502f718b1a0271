package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SpreadPoint is one cross-exchange computation for a symbol at one event
// time. Exchange1 < Exchange2 lexicographically so that (A,B,S) and (B,A,S)
// always refer to the same series.
type SpreadPoint struct {
	Timestamp     time.Time       `json:"timestamp"`
	Symbol        string          `json:"symbol"`
	Exchange1     string          `json:"exchange1"`
	Exchange2     string          `json:"exchange2"`
	Bid1          decimal.Decimal `json:"bid1"`
	Bid2          decimal.Decimal `json:"bid2"`
	SpreadPercent decimal.Decimal `json:"spreadPercent"`
	Staleness     time.Duration   `json:"staleness"`
	TriggeredBy   string          `json:"triggeredBy"`
}

// CanonicalPair orders two exchange names lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// WindowKey builds the canonical "{exchange1}_{exchange2}_{symbol}" key.
func WindowKey(ex1, ex2, symbol string) string {
	ex1, ex2 = CanonicalPair(ex1, ex2)
	return fmt.Sprintf("%s_%s_%s", ex1, ex2, symbol)
}

// TickKey builds the "{exchange}_{symbol}" key used by the last-tick cache.
func TickKey(exchange, symbol string) string {
	return fmt.Sprintf("%s_%s", exchange, symbol)
}

// CrossSpreadPercent returns (bid1/bid2 - 1) * 100. Callers must ensure both
// bids are positive; a zero bid2 would divide by zero.
func CrossSpreadPercent(bid1, bid2 decimal.Decimal) decimal.Decimal {
	return bid1.Div(bid2).Sub(decimal.NewFromInt(1)).Mul(hundred)
}

// ChartFrame is the pre-computed payload pushed to chart subscribers.
// Timestamps are epoch seconds with millisecond precision. Spread and band
// entries are nil where no value could be derived.
type ChartFrame struct {
	Timestamps []float64          `json:"timestamps"`
	Spreads    []*decimal.Decimal `json:"spreads"`
	UpperBand  []*decimal.Decimal `json:"upperBand"`
	LowerBand  []*decimal.Decimal `json:"lowerBand"`
}

// EpochSeconds converts a timestamp to epoch seconds with ms precision.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}
