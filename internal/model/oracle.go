// Package model provides the predictive confidence oracle used by the
// alpha scorer. Training and serialization happen elsewhere; this package
// only loads a model and scores candidates.
package model

import (
	"context"
	"errors"
	"math"

	"solana-trader/internal/domain"
)

// ErrUnavailable is returned when no model is loaded.
var ErrUnavailable = errors.New("model unavailable")

// Oracle returns a confidence in [0,1] that entering the candidate pays off.
type Oracle interface {
	Confidence(ctx context.Context, c domain.Candidate) (float64, error)
}

// Static always returns the same confidence.
type Static float64

// Confidence implements Oracle.
func (s Static) Confidence(context.Context, domain.Candidate) (float64, error) {
	return clamp01(float64(s)), nil
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, c domain.Candidate) (float64, error)

// Confidence implements Oracle.
func (f Func) Confidence(ctx context.Context, c domain.Candidate) (float64, error) {
	return f(ctx, c)
}

// NumFeatures is the width of the vector produced by Features.
const NumFeatures = 8

// Features flattens a candidate into the model input vector.
// Order: price_change_1h, price_change_6h, price_change_24h,
// log1p(volume_24h), volume ratio vs 7d average, log1p(liquidity_usd),
// log1p(market_cap), log1p(holders).
func Features(c domain.Candidate) []float32 {
	ratio := 0.0
	if c.AvgVolume7d > 0 {
		ratio = c.Volume24h / c.AvgVolume7d
	}
	return []float32{
		float32(c.PriceChange1h / 100),
		float32(c.PriceChange6h / 100),
		float32(c.PriceChange24h / 100),
		float32(math.Log1p(math.Max(0, c.Volume24h))),
		float32(ratio),
		float32(math.Log1p(math.Max(0, c.LiquidityUSD))),
		float32(math.Log1p(math.Max(0, c.MarketCap))),
		float32(math.Log1p(math.Max(0, float64(c.Holders)))),
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
