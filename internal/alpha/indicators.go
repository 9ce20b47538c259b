package alpha

import (
	"math"

	"solana-trader/internal/domain"
)

// neutralRSI is returned when there is not enough history.
const neutralRSI = 50.0

// RSI computes the Wilder relative strength index over closes.
// Returns 50 when fewer than period+1 closes are available.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return neutralRSI
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return neutralRSI
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// Exposures derives factor exposures from candidate features.
func Exposures(c domain.Candidate) map[string]float64 {
	return map[string]float64{
		domain.FactorMomentum:   momentumFactor(c),
		domain.FactorVolatility: volatilityFactor(c),
		domain.FactorLiquidity:  liquidityFactor(c),
		domain.FactorMarketBeta: marketBeta(c),
	}
}

// marketBetaBaseline is the assumed 24h market move (percent).
const marketBetaBaseline = 5.0

func marketBeta(c domain.Candidate) float64 {
	return clamp(c.PriceChange24h/marketBetaBaseline, -3, 3)
}

// momentumFactor blends multi-timeframe changes (percent) and expresses the
// blend in units of the market baseline move, like marketBeta.
func momentumFactor(c domain.Candidate) float64 {
	blended := 0.2*c.PriceChange1h + 0.3*c.PriceChange6h + 0.5*c.PriceChange24h
	return clamp(blended/marketBetaBaseline, -10, 10)
}

// volatilityFactor annualizes the dispersion of per-hour changes, scaled so
// 1.0 means 100% annual volatility.
func volatilityFactor(c domain.Candidate) float64 {
	changes := []float64{c.PriceChange1h, c.PriceChange6h / 6, c.PriceChange24h / 24}
	mean := 0.0
	for _, v := range changes {
		mean += v
	}
	mean /= float64(len(changes))
	variance := 0.0
	for _, v := range changes {
		variance += (v - mean) * (v - mean)
	}
	hourly := math.Sqrt(variance / float64(len(changes)))
	return hourly * math.Sqrt(24*365) / 100
}

func liquidityFactor(c domain.Candidate) float64 {
	volLiq := 0.0
	if c.LiquidityUSD > 0 {
		volLiq = c.Volume24h / c.LiquidityUSD
	}
	turnover := 0.0
	if c.MarketCap > 0 {
		turnover = c.Volume24h / c.MarketCap
	}
	score := math.Log1p(math.Max(0, volLiq)) + math.Log1p(math.Max(0, turnover*100))
	return clamp(score/5, 0, 5)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
