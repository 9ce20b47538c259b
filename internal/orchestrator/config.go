package orchestrator

import (
	"time"

	"solana-trader/internal/domain"
)

// Config controls tick cadence, fan-out and timeouts.
type Config struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	// CallTimeout bounds discovery, pricing and balance calls.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// ExecutionTimeout bounds one Buy or Sell including confirmation.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	// LedgerTimeout bounds ledger writes, which are detached from shutdown.
	LedgerTimeout   time.Duration `yaml:"ledger_timeout"`
	ErrorBackoff    time.Duration `yaml:"error_backoff"`
	MaxErrorBackoff time.Duration `yaml:"max_error_backoff"`
	MaxCandidates   int           `yaml:"max_candidates"`
	RecordPrices    bool          `yaml:"record_prices"`
	// DriftTolerance is the execution/ledger balance difference (SOL) above
	// which reconciliation warns.
	DriftTolerance float64 `yaml:"drift_tolerance"`
}

// DefaultConfig returns a 30s tick with four workers.
func DefaultConfig() Config {
	return Config{
		TickInterval:     30 * time.Second,
		MaxConcurrency:   4,
		CallTimeout:      10 * time.Second,
		ExecutionTimeout: 90 * time.Second,
		LedgerTimeout:    15 * time.Second,
		ErrorBackoff:     5 * time.Second,
		MaxErrorBackoff:  2 * time.Minute,
		MaxCandidates:    10,
		RecordPrices:     true,
		DriftTolerance:   0.01,
	}
}

// Validate checks intervals and limits.
func (c Config) Validate() error {
	switch {
	case c.TickInterval <= 0:
		return &domain.ConfigError{Field: "orchestrator.tick_interval", Reason: "must be > 0"}
	case c.MaxConcurrency <= 0:
		return &domain.ConfigError{Field: "orchestrator.max_concurrency", Reason: "must be > 0"}
	case c.CallTimeout <= 0:
		return &domain.ConfigError{Field: "orchestrator.call_timeout", Reason: "must be > 0"}
	case c.ExecutionTimeout <= 0:
		return &domain.ConfigError{Field: "orchestrator.execution_timeout", Reason: "must be > 0"}
	case c.LedgerTimeout <= 0:
		return &domain.ConfigError{Field: "orchestrator.ledger_timeout", Reason: "must be > 0"}
	case c.ErrorBackoff <= 0 || c.MaxErrorBackoff < c.ErrorBackoff:
		return &domain.ConfigError{Field: "orchestrator.error_backoff", Reason: "require 0 < error_backoff <= max_error_backoff"}
	case c.MaxCandidates < 0:
		return &domain.ConfigError{Field: "orchestrator.max_candidates", Reason: "must be >= 0"}
	case c.DriftTolerance < 0:
		return &domain.ConfigError{Field: "orchestrator.drift_tolerance", Reason: "must be >= 0"}
	}
	return nil
}
