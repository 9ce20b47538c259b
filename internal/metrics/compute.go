// Package metrics computes trading performance from realized SELL records.
package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
)

// Performance summarizes realized SELLs. Outcome fields are per-sell
// percentage changes against the cost basis (0.25 = +25%).
type Performance struct {
	// Counts
	Sells        int     `json:"sells"`
	Assets       int     `json:"assets"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AssetWinRate float64 `json:"asset_win_rate"`

	// Outcome distribution
	OutcomeMean   float64 `json:"outcome_mean"`
	OutcomeMedian float64 `json:"outcome_median"`
	OutcomeP10    float64 `json:"outcome_p10"`
	OutcomeP25    float64 `json:"outcome_p25"`
	OutcomeP75    float64 `json:"outcome_p75"`
	OutcomeP90    float64 `json:"outcome_p90"`
	OutcomeMin    float64 `json:"outcome_min"`
	OutcomeMax    float64 `json:"outcome_max"`
	OutcomeStddev float64 `json:"outcome_stddev"`

	// Base-currency results, in record order
	RealizedTotal        decimal.Decimal `json:"realized_total"`
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
}

// Compute calculates Performance from records in any order. Records other
// than SELLs with realized figures are ignored. Order-dependent fields use
// ID order.
func Compute(records []*domain.TradeRecord) Performance {
	sells := make([]*domain.TradeRecord, 0, len(records))
	for _, r := range records {
		if r != nil && r.Side == domain.SideSell && r.Realized != nil {
			sells = append(sells, r)
		}
	}
	perf := Performance{RealizedTotal: decimal.Zero, MaxDrawdown: decimal.Zero}
	n := len(sells)
	if n == 0 {
		return perf
	}
	sort.Slice(sells, func(i, j int) bool { return sells[i].ID < sells[j].ID })

	outcomes := make([]float64, n)
	gains := make([]decimal.Decimal, n)
	for i, s := range sells {
		outcomes[i] = s.Realized.PctChange
		gains[i] = s.Realized.Gain
		if s.Realized.Gain.Sign() > 0 {
			perf.Wins++
		} else {
			perf.Losses++
		}
		perf.RealizedTotal = perf.RealizedTotal.Add(s.Realized.Gain)
	}

	sorted := make([]float64, n)
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	mean := computeMean(outcomes)
	perf.Sells = n
	perf.WinRate = float64(perf.Wins) / float64(n)
	perf.Assets, perf.AssetWinRate = computeAssetWinRate(sells)

	perf.OutcomeMean = mean
	perf.OutcomeMedian = computePercentile(sorted, 0.50)
	perf.OutcomeP10 = computePercentile(sorted, 0.10)
	perf.OutcomeP25 = computePercentile(sorted, 0.25)
	perf.OutcomeP75 = computePercentile(sorted, 0.75)
	perf.OutcomeP90 = computePercentile(sorted, 0.90)
	perf.OutcomeMin = sorted[0]
	perf.OutcomeMax = sorted[n-1]
	perf.OutcomeStddev = computeStddev(outcomes, mean)

	perf.MaxDrawdown = computeMaxDrawdown(gains)
	perf.MaxConsecutiveLosses = computeMaxConsecutiveLosses(gains)
	return perf
}

// computeAssetWinRate groups sells by asset and counts an asset as winning
// when its summed realized gain is positive.
func computeAssetWinRate(sells []*domain.TradeRecord) (int, float64) {
	byAsset := make(map[string]decimal.Decimal)
	for _, s := range sells {
		byAsset[s.Asset] = byAsset[s.Asset].Add(s.Realized.Gain)
	}
	winning := 0
	for _, g := range byAsset {
		if g.Sign() > 0 {
			winning++
		}
	}
	return len(byAsset), float64(winning) / float64(len(byAsset))
}

func computeMean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

// computeStddev is the sample standard deviation (n-1 denominator).
func computeStddev(outcomes []float64, mean float64) float64 {
	n := len(outcomes)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, o := range outcomes {
		diff := o - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation. sorted must be ascending.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown is the worst peak-to-trough fall of cumulative
// realized gain.
func computeMaxDrawdown(gains []decimal.Decimal) decimal.Decimal {
	cumulative := decimal.Zero
	peak := decimal.Zero
	worst := decimal.Zero
	for _, g := range gains {
		cumulative = cumulative.Add(g)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if dd := peak.Sub(cumulative); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}

// computeMaxConsecutiveLosses finds the longest streak of gains <= 0.
func computeMaxConsecutiveLosses(gains []decimal.Decimal) int {
	maxStreak, streak := 0, 0
	for _, g := range gains {
		if g.Sign() <= 0 {
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
	}
	return maxStreak
}
