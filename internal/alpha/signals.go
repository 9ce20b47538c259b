package alpha

import (
	"fmt"
	"math"

	"solana-trader/internal/domain"
)

// Raw signals are signed in [-1, 1]; Score clips them to [0, 1] so bearish
// readings contribute nothing to an entry score.

// momentumSignal favours short-term strength confirmed by volume and
// discounted by volatility.
func momentumSignal(c domain.Candidate, volatility float64) float64 {
	short := c.PriceChange1h / 100
	medium := c.PriceChange6h / 600
	volRatio := c.Volume24h / math.Max(c.AvgVolume7d, 1)
	quality := 1 / (1 + math.Max(0, volatility))
	return math.Tanh((0.3*short + 0.7*medium) * math.Min(volRatio, 2) * quality)
}

// meanReversionSignal is positive when oversold, negative when overbought.
func meanReversionSignal(rsi, volatility float64) float64 {
	adj := 1 / (1 + math.Max(0, volatility))
	var s float64
	switch {
	case rsi < 30:
		s = (30 - rsi) / 30 * adj
	case rsi > 70:
		s = (70 - rsi) / 30 * adj
	}
	return clamp(s, -1, 1)
}

// volumeBreakoutSignal steps up as 24h volume exceeds the 7-day average.
func volumeBreakoutSignal(c domain.Candidate) (float64, float64) {
	avg := c.AvgVolume7d
	if avg <= 0 {
		avg = c.Volume24h
	}
	ratio := 1.0
	if avg > 0 {
		ratio = c.Volume24h / avg
	}
	switch {
	case ratio > 3:
		return 1.0, ratio
	case ratio > 2:
		return 0.5, ratio
	case ratio > 1.5:
		return 0.25, ratio
	default:
		return 0, ratio
	}
}

func normalize(v float64) float64 {
	return clamp(v, 0, 1)
}

func reason(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
