package alpha

import (
	"fmt"
	"math"
	"sort"
	"time"

	"solana-trader/internal/domain"
)

// Limit is an inclusive exposure band.
type Limit struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies within the band.
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// Config holds scorer parameters.
type Config struct {
	// Weights by signal name. Must sum to 1.0.
	Weights        map[string]float64 `yaml:"weights"`
	EntryThreshold float64            `yaml:"entry_threshold"`
	// FactorLimits by factor name. An exposure outside its band vetoes entry.
	FactorLimits map[string]Limit `yaml:"factor_limits"`
	RSIPeriod    int              `yaml:"rsi_period"`
	ModelTimeout time.Duration    `yaml:"model_timeout"`
}

// DefaultConfig returns the production weights and limits.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			domain.SignalMomentum:        0.3,
			domain.SignalMeanReversion:   0.2,
			domain.SignalVolumeBreakout:  0.2,
			domain.SignalModelConfidence: 0.3,
		},
		EntryThreshold: 0.3,
		FactorLimits: map[string]Limit{
			domain.FactorMarketBeta: {Min: -1.5, Max: 2.5},
			domain.FactorVolatility: {Min: 0, Max: 3.0},
			domain.FactorMomentum:   {Min: -2.0, Max: 3.0},
			domain.FactorLiquidity:  {Min: 0.5, Max: 5.0},
		},
		RSIPeriod:    14,
		ModelTimeout: 2 * time.Second,
	}
}

// weightTolerance absorbs float rounding in YAML-supplied weights.
const weightTolerance = 1e-6

var knownSignals = map[string]bool{
	domain.SignalMomentum:        true,
	domain.SignalMeanReversion:   true,
	domain.SignalVolumeBreakout:  true,
	domain.SignalModelConfidence: true,
}

var knownFactors = map[string]bool{
	domain.FactorMomentum:   true,
	domain.FactorVolatility: true,
	domain.FactorLiquidity:  true,
	domain.FactorMarketBeta: true,
}

// Validate checks weights and limits.
func (c Config) Validate() error {
	if len(c.Weights) == 0 {
		return &domain.ConfigError{Field: "alpha.weights", Reason: "at least one signal weight required"}
	}
	sum := 0.0
	for _, name := range sortedKeys(c.Weights) {
		w := c.Weights[name]
		if !knownSignals[name] {
			return &domain.ConfigError{Field: "alpha.weights." + name, Reason: "unknown signal"}
		}
		if w < 0 || math.IsNaN(w) {
			return &domain.ConfigError{Field: "alpha.weights." + name, Reason: "must be >= 0"}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return &domain.ConfigError{Field: "alpha.weights", Reason: fmt.Sprintf("must sum to 1.0, got %.6f", sum)}
	}
	if c.EntryThreshold < 0 || c.EntryThreshold > 1 {
		return &domain.ConfigError{Field: "alpha.entry_threshold", Reason: "must be in [0, 1]"}
	}
	for name, l := range c.FactorLimits {
		if !knownFactors[name] {
			return &domain.ConfigError{Field: "alpha.factor_limits." + name, Reason: "unknown factor"}
		}
		if l.Min > l.Max {
			return &domain.ConfigError{Field: "alpha.factor_limits." + name, Reason: "min greater than max"}
		}
	}
	if c.RSIPeriod < 2 {
		return &domain.ConfigError{Field: "alpha.rsi_period", Reason: "must be >= 2"}
	}
	if c.ModelTimeout < 0 {
		return &domain.ConfigError{Field: "alpha.model_timeout", Reason: "must be >= 0"}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
