package exit

import (
	"fmt"
	"math"

	"solana-trader/internal/domain"
)

// Config holds staged profit-taking and stop parameters. Percentages are
// fractions (0.2 = 20%).
type Config struct {
	Levels             []domain.ExitLevel `yaml:"levels"`
	StopLossPct        float64            `yaml:"stop_loss_pct"`
	TrailingEnabled    bool               `yaml:"trailing_enabled"`
	TrailingActivation float64            `yaml:"trailing_activation"`
	TrailingDistance   float64            `yaml:"trailing_distance"`
}

// DefaultConfig returns 25% exits at +20%, +50%, +100% and +200%, a 5% stop
// loss and a 20% trailing stop armed at +300%.
func DefaultConfig() Config {
	return Config{
		Levels: []domain.ExitLevel{
			{Threshold: 0.2, Fraction: 0.25},
			{Threshold: 0.5, Fraction: 0.25},
			{Threshold: 1.0, Fraction: 0.25},
			{Threshold: 2.0, Fraction: 0.25},
		},
		StopLossPct:        0.05,
		TrailingEnabled:    true,
		TrailingActivation: 3.0,
		TrailingDistance:   0.2,
	}
}

// Validate checks the level table and stop parameters.
func (c Config) Validate() error {
	seen := make(map[float64]bool, len(c.Levels))
	total := 0.0
	for i, l := range c.Levels {
		field := fmt.Sprintf("exit.levels[%d]", i)
		if l.Threshold <= 0 || math.IsNaN(l.Threshold) {
			return &domain.ConfigError{Field: field + ".threshold", Reason: "must be > 0"}
		}
		if l.Fraction <= 0 || l.Fraction > 1 || math.IsNaN(l.Fraction) {
			return &domain.ConfigError{Field: field + ".fraction", Reason: "must be in (0, 1]"}
		}
		if seen[l.Threshold] {
			return &domain.ConfigError{Field: field + ".threshold", Reason: fmt.Sprintf("duplicate threshold %v", l.Threshold)}
		}
		seen[l.Threshold] = true
		total += l.Fraction
	}
	if total > 1+1e-9 {
		return &domain.ConfigError{Field: "exit.levels", Reason: fmt.Sprintf("fractions sum to %.4f, above 1", total)}
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return &domain.ConfigError{Field: "exit.stop_loss_pct", Reason: "must be in (0, 1)"}
	}
	if c.TrailingEnabled {
		if c.TrailingActivation <= 0 {
			return &domain.ConfigError{Field: "exit.trailing_activation", Reason: "must be > 0"}
		}
		if c.TrailingDistance <= 0 || c.TrailingDistance >= 1 {
			return &domain.ConfigError{Field: "exit.trailing_distance", Reason: "must be in (0, 1)"}
		}
	}
	return nil
}
