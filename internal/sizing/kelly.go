package sizing

import (
	"math"

	"solana-trader/internal/domain"
)

// KellyFraction returns the edge-optimal fraction of capital for a bet won
// with probability p, returning avgWin per unit staked, and losing avgLoss
// per unit staked otherwise: (p·avgWin − (1−p)·avgLoss) / avgWin.
// Never negative. Zero when avgWin is not positive.
func KellyFraction(p, avgWin, avgLoss float64) float64 {
	if avgWin <= 0 || math.IsNaN(p) {
		return 0
	}
	k := (p*avgWin - (1-p)*avgLoss) / avgWin
	if k < 0 || math.IsNaN(k) {
		return 0
	}
	return k
}

// ScaleByConfidence shrinks a Kelly estimate when the entry signal is weak.
// confidence in [0,1] maps to a multiplier in [0.5, 1].
func ScaleByConfidence(kelly, confidence float64) float64 {
	c := math.Max(0, math.Min(1, confidence))
	return kelly * (0.5 + 0.5*c)
}

// Stats summarizes realized SELLs.
type Stats struct {
	Trades  int
	Wins    int
	WinRate float64
	AvgWin  float64 // mean pct_change of winning sells
	AvgLoss float64 // mean |pct_change| of losing sells
}

// HistoryStats computes win statistics from SELL records that carry
// realized figures.
func HistoryStats(records []*domain.TradeRecord) Stats {
	var s Stats
	var winSum, lossSum float64
	losses := 0
	for _, r := range records {
		if r == nil || r.Side != domain.SideSell || r.Realized == nil {
			continue
		}
		s.Trades++
		if r.Realized.Gain.Sign() > 0 {
			s.Wins++
			winSum += r.Realized.PctChange
		} else {
			losses++
			lossSum += math.Abs(r.Realized.PctChange)
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWin = winSum / float64(s.Wins)
	}
	if losses > 0 {
		s.AvgLoss = lossSum / float64(losses)
	}
	return s
}

// KellyFromHistory estimates a Kelly fraction from realized SELLs.
// Returns nil when fewer than minTrades sells are available.
func KellyFromHistory(records []*domain.TradeRecord, minTrades int) *float64 {
	s := HistoryStats(records)
	if s.Trades == 0 || s.Trades < minTrades {
		return nil
	}
	k := KellyFraction(s.WinRate, s.AvgWin, s.AvgLoss)
	return &k
}
