package orchestrator

import (
	"strings"

	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
)

// AdmitSymbols applies the startup symbol filter: keep USDT/USDC-quoted
// symbols that have a 24h ticker whose quote volume lies inside
// [minVolume, maxVolume], deduplicated by symbol. A non-positive maxVolume
// means no ceiling.
func AdmitSymbols(symbols []types.SymbolInfo, tickers []types.Ticker, minVolume, maxVolume decimal.Decimal) []types.SymbolInfo {
	volumes := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		volumes[types.NormalizeSymbol(t.Symbol)] = t.QuoteVolume24h
	}

	seen := make(map[string]struct{}, len(symbols))
	admitted := make([]types.SymbolInfo, 0, len(symbols))

	for _, info := range symbols {
		symbol := types.NormalizeSymbol(info.Symbol)
		if !strings.HasSuffix(symbol, "USDT") && !strings.HasSuffix(symbol, "USDC") {
			continue
		}
		volume, ok := volumes[symbol]
		if !ok {
			continue
		}
		if volume.LessThan(minVolume) {
			continue
		}
		if maxVolume.IsPositive() && volume.GreaterThan(maxVolume) {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		info.Symbol = symbol
		admitted = append(admitted, info)
	}
	return admitted
}
