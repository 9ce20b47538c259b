package domain

// Signal names used by the alpha scorer and in configuration.
const (
	SignalMomentum        = "momentum"
	SignalMeanReversion   = "mean_reversion"
	SignalVolumeBreakout  = "volume_breakout"
	SignalModelConfidence = "model_confidence"
)

// Exposure factor names.
const (
	FactorMomentum   = "momentum"
	FactorVolatility = "volatility"
	FactorLiquidity  = "liquidity"
	FactorMarketBeta = "market_beta"
)

// FactorScore is the scoring result for one asset in one tick. Not persisted.
type FactorScore struct {
	Asset string

	// Signals holds normalized signal values in [0,1] by signal name.
	Signals map[string]float64
	// Weights holds the effective weights used, after any renormalization.
	Weights map[string]float64
	// Exposures holds raw factor exposures checked against limits.
	Exposures map[string]float64

	Combined       float64
	Recommendation bool

	// Veto names the factor whose exposure limit vetoed the entry, if any.
	Veto string
	// ModelAvailable is false when the confidence signal was dropped.
	ModelAvailable bool
	Reasons        []string
}
