package window

import (
	"sort"
	"time"

	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/shopspring/decimal"
)

// ChartParams controls chart-frame derivation: the rolling quantile bands
// and the recent-window filter applied before returning.
type ChartParams struct {
	RecentWindow   time.Duration
	QuantileWindow int
	UpperQuantile  float64
	LowerQuantile  float64
	FallbackPoints int
}

func (p *ChartParams) applyDefaults() {
	if p.RecentWindow <= 0 {
		p.RecentWindow = 15 * time.Minute
	}
	if p.QuantileWindow <= 0 {
		p.QuantileWindow = 200
	}
	if p.UpperQuantile <= 0 || p.UpperQuantile > 1 {
		p.UpperQuantile = 0.97
	}
	if p.LowerQuantile < 0 || p.LowerQuantile >= 1 {
		p.LowerQuantile = 0.03
	}
	if p.FallbackPoints <= 0 {
		p.FallbackPoints = 10
	}
}

// BuildFrame derives the chart payload from a snapshot of spread points.
// Spreads are recomputed per point ((bid1/bid2 - 1) * 100, nil when bid2 is
// not positive); each band value is the quantile of the last QuantileWindow
// non-nil spreads up to and including that index. Points older than
// RecentWindow are then filtered out, falling back to the last
// FallbackPoints of the full series when nothing is recent enough.
func BuildFrame(points []types.SpreadPoint, now time.Time, params ChartParams) types.ChartFrame {
	params.applyDefaults()

	n := len(points)
	spreads := make([]*decimal.Decimal, n)
	upper := make([]*decimal.Decimal, n)
	lower := make([]*decimal.Decimal, n)

	// Rolling window of the last QuantileWindow non-nil spread values.
	rolling := make([]decimal.Decimal, 0, params.QuantileWindow)

	for i, p := range points {
		if p.Bid2.IsPositive() {
			s := types.CrossSpreadPercent(p.Bid1, p.Bid2)
			spreads[i] = &s
			rolling = append(rolling, s)
			if len(rolling) > params.QuantileWindow {
				rolling = rolling[1:]
			}
		}
		if len(rolling) > 0 {
			u := quantile(rolling, params.UpperQuantile)
			l := quantile(rolling, params.LowerQuantile)
			upper[i] = &u
			lower[i] = &l
		}
	}

	// Recent-window filter with last-N fallback.
	cutoff := now.Add(-params.RecentWindow)
	start := n
	for i, p := range points {
		if !p.Timestamp.Before(cutoff) {
			start = i
			break
		}
	}
	if start == n {
		start = n - params.FallbackPoints
		if start < 0 {
			start = 0
		}
	}

	frame := types.ChartFrame{
		Timestamps: make([]float64, 0, n-start),
		Spreads:    make([]*decimal.Decimal, 0, n-start),
		UpperBand:  make([]*decimal.Decimal, 0, n-start),
		LowerBand:  make([]*decimal.Decimal, 0, n-start),
	}
	for i := start; i < n; i++ {
		frame.Timestamps = append(frame.Timestamps, types.EpochSeconds(points[i].Timestamp))
		frame.Spreads = append(frame.Spreads, spreads[i])
		frame.UpperBand = append(frame.UpperBand, upper[i])
		frame.LowerBand = append(frame.LowerBand, lower[i])
	}
	return frame
}

// quantile selects by the index rule idx = ceil(count*q) - 1 clamped to
// [0, count-1], over a stable sort of the window (ties keep arrival order).
func quantile(window []decimal.Decimal, q float64) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(window))
	copy(sorted, window)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	idx := ceilInt(float64(len(sorted))*q) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ceilInt(x float64) int {
	i := int(x)
	if float64(i) < x {
		i++
	}
	return i
}
