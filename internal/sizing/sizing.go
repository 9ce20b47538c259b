// Package sizing converts account balance and an optional Kelly estimate
// into a bounded position size.
package sizing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
)

// Config holds the sizing bounds. Percentages are fractions of balance
// (0.04 = 4%). Absolute bounds are in base currency.
type Config struct {
	MinPositionSizePct     float64 `yaml:"min_position_size_pct"`
	DefaultPositionSizePct float64 `yaml:"default_position_size_pct"`
	MaxPositionSizePct     float64 `yaml:"max_position_size_pct"`
	AbsoluteMinSol         float64 `yaml:"absolute_min_sol"`
	AbsoluteMaxSol         float64 `yaml:"absolute_max_sol"`
	KellySafetyFactor      float64 `yaml:"kelly_safety_factor"`
	KellyMinTrades         int     `yaml:"kelly_min_trades"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinPositionSizePct:     0.03,
		DefaultPositionSizePct: 0.04,
		MaxPositionSizePct:     0.05,
		AbsoluteMinSol:         0.1,
		AbsoluteMaxSol:         2.0,
		KellySafetyFactor:      0.25,
		KellyMinTrades:         20,
	}
}

// Validate checks that the bounds are ordered and in range.
func (c Config) Validate() error {
	pct := func(field string, v float64) error {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return &domain.ConfigError{Field: "sizing." + field, Reason: fmt.Sprintf("must be in (0, 1], got %v", v)}
		}
		return nil
	}
	if err := pct("min_position_size_pct", c.MinPositionSizePct); err != nil {
		return err
	}
	if err := pct("default_position_size_pct", c.DefaultPositionSizePct); err != nil {
		return err
	}
	if err := pct("max_position_size_pct", c.MaxPositionSizePct); err != nil {
		return err
	}
	if err := pct("kelly_safety_factor", c.KellySafetyFactor); err != nil {
		return err
	}
	if c.MinPositionSizePct > c.DefaultPositionSizePct || c.DefaultPositionSizePct > c.MaxPositionSizePct {
		return &domain.ConfigError{Field: "sizing", Reason: "require min_position_size_pct <= default_position_size_pct <= max_position_size_pct"}
	}
	if c.AbsoluteMinSol <= 0 {
		return &domain.ConfigError{Field: "sizing.absolute_min_sol", Reason: "must be > 0"}
	}
	if c.AbsoluteMaxSol < c.AbsoluteMinSol {
		return &domain.ConfigError{Field: "sizing.absolute_max_sol", Reason: "must be >= absolute_min_sol"}
	}
	if c.KellyMinTrades < 0 {
		return &domain.ConfigError{Field: "sizing.kelly_min_trades", Reason: "must be >= 0"}
	}
	return nil
}

// AmountScale is the precision of returned amounts (lamports).
const AmountScale = 9

// SizePosition returns the amount of base currency to commit to a new
// position. kelly may be nil when no estimate is available.
//
// The result is never above balance, never above MaxPositionSizePct of
// balance and never outside [AbsoluteMinSol, AbsoluteMaxSol]. When those
// bounds cannot all be met (balance below AbsoluteMinSol, or the percentage
// ceiling below the absolute floor) an *domain.InsufficientBalanceError is
// returned and the caller should skip the entry.
func SizePosition(balance decimal.Decimal, cfg Config, kelly *float64) (decimal.Decimal, error) {
	absMin := decimal.NewFromFloat(cfg.AbsoluteMinSol)
	absMax := decimal.NewFromFloat(cfg.AbsoluteMaxSol)
	maxPct := decimal.NewFromFloat(cfg.MaxPositionSizePct)

	if balance.LessThan(absMin) {
		return decimal.Zero, &domain.InsufficientBalanceError{Balance: balance, Minimum: absMin}
	}
	ceiling := balance.Mul(maxPct)
	if ceiling.LessThan(absMin) {
		// Percentage cap is below the smallest tradable size.
		return decimal.Zero, &domain.InsufficientBalanceError{
			Balance: balance,
			Minimum: absMin.Div(maxPct).Round(AmountScale),
		}
	}

	pct := cfg.DefaultPositionSizePct
	if kelly != nil && !math.IsNaN(*kelly) {
		pct = clamp(*kelly*cfg.KellySafetyFactor, cfg.MinPositionSizePct, cfg.MaxPositionSizePct)
	}
	pct = clamp(pct, cfg.MinPositionSizePct, cfg.MaxPositionSizePct)

	amount := balance.Mul(decimal.NewFromFloat(pct))
	amount = decimal.Max(amount, absMin)
	amount = decimal.Min(amount, absMax, ceiling, balance)
	return amount.RoundFloor(AmountScale), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
