// Package bybit adapts Bybit's v5 spot market data: REST discovery, public
// ticker stream over WebSocket with keepalive pings and unconditional
// reconnects.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gogi213/arb1-sub000/internal/exchange"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	baseURL        = "https://api.bybit.com"
	baseURLTestnet = "https://api-testnet.bybit.com"
	wsURL          = "wss://stream.bybit.com/v5/public/spot"
	wsURLTestnet   = "wss://stream-testnet.bybit.com/v5/public/spot"

	restWeight = 10
)

// Adapter implements exchange.Adapter for Bybit spot markets.
type Adapter struct {
	name       string
	baseURL    string
	wsURL      string
	httpClient *http.Client
	limiter    *exchange.RateLimiter
	log        *logrus.Entry
	state      exchange.StateListener
}

// New creates the adapter. Public market data needs no credentials.
func New(testnet bool, state exchange.StateListener, log *logrus.Entry) *Adapter {
	base, ws := baseURL, wsURL
	if testnet {
		base, ws = baseURLTestnet, wsURLTestnet
	}
	if state == nil {
		state = exchange.NopStateListener
	}
	return &Adapter{
		name:       "bybit",
		baseURL:    base,
		wsURL:      ws,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    exchange.NewRateLimiter(600),
		log:        log.WithField("exchange", "bybit"),
		state:      state,
	}
}

// Name returns the short exchange identifier.
func (a *Adapter) Name() string { return a.name }

type restResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type instrumentsResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		Status      string `json:"status"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			BasePrecision string `json:"basePrecision"`
			MinOrderAmt   string `json:"minOrderAmt"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// Symbols fetches spot instrument metadata.
func (a *Adapter) Symbols(ctx context.Context) ([]types.SymbolInfo, error) {
	var result instrumentsResult
	if err := a.get(ctx, "/v5/market/instruments-info?category=spot&limit=1000", &result); err != nil {
		return nil, fmt.Errorf("bybit instruments: %w", err)
	}

	out := make([]types.SymbolInfo, 0, len(result.List))
	for _, inst := range result.List {
		if inst.Status != "Trading" {
			continue
		}
		out = append(out, types.SymbolInfo{
			Exchange:     a.name,
			Symbol:       types.NormalizeSymbol(inst.Symbol),
			PriceStep:    parseDecimal(inst.PriceFilter.TickSize),
			QuantityStep: parseDecimal(inst.LotSizeFilter.BasePrecision),
			MinNotional:  parseDecimal(inst.LotSizeFilter.MinOrderAmt),
		})
	}
	return out, nil
}

type tickersResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		Turnover24h string `json:"turnover24h"`
	} `json:"list"`
}

// Tickers fetches 24h turnover (quote volume) for all spot symbols.
func (a *Adapter) Tickers(ctx context.Context) ([]types.Ticker, error) {
	var result tickersResult
	if err := a.get(ctx, "/v5/market/tickers?category=spot", &result); err != nil {
		return nil, fmt.Errorf("bybit tickers: %w", err)
	}

	out := make([]types.Ticker, 0, len(result.List))
	for _, t := range result.List {
		out = append(out, types.Ticker{
			Symbol:         types.NormalizeSymbol(t.Symbol),
			QuoteVolume24h: parseDecimal(t.Turnover24h),
		})
	}
	return out, nil
}

func (a *Adapter) get(ctx context.Context, path string, result interface{}) error {
	if err := a.limiter.CheckLimit(restWeight); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope restResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.RetCode != 0 {
		return fmt.Errorf("api error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return json.Unmarshal(envelope.Result, result)
}

func parseDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
