package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ExitLevel is one staged profit-taking step.
type ExitLevel struct {
	Threshold float64 `yaml:"threshold"` // profit_pct that fires the level (0.5 = +50%)
	Fraction  float64 `yaml:"fraction"`  // share of original quantity to sell
}

// SortLevels returns a copy of levels ordered by ascending threshold.
func SortLevels(levels []ExitLevel) []ExitLevel {
	out := make([]ExitLevel, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Threshold < out[j].Threshold
	})
	return out
}

// ExitReason codes.
type ExitReason string

const (
	ExitReasonPartial      ExitReason = "PARTIAL_EXIT"
	ExitReasonStopLoss     ExitReason = "STOP_LOSS"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
)

// ExitStage is the coarse lifecycle of a position under exit management.
type ExitStage string

const (
	StageEntered         ExitStage = "ENTERED"
	StagePartiallyExited ExitStage = "PARTIALLY_EXITED"
	StageFullyExited     ExitStage = "FULLY_EXITED"
)

// ExitState tracks staged exits for one open position.
// Fired is keyed by the index of the level in the ascending level list.
type ExitState struct {
	Asset            string
	OriginalQuantity decimal.Decimal
	Fired            map[int]bool
	TrailingArmed    bool
	HighWater        decimal.Decimal // valid only while TrailingArmed
	Closed           bool
	UpdatedAt        int64 // ms
}

// NewExitState creates the state for a freshly opened position.
func NewExitState(asset string, quantity decimal.Decimal, now int64) *ExitState {
	return &ExitState{
		Asset:            asset,
		OriginalQuantity: quantity,
		Fired:            make(map[int]bool),
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy.
func (s *ExitState) Clone() *ExitState {
	if s == nil {
		return nil
	}
	c := *s
	c.Fired = make(map[int]bool, len(s.Fired))
	for k, v := range s.Fired {
		c.Fired[k] = v
	}
	return &c
}

// FiredCount returns the number of levels already fired.
func (s *ExitState) FiredCount() int {
	n := 0
	for _, v := range s.Fired {
		if v {
			n++
		}
	}
	return n
}

// FiredIndexes returns fired level indexes in ascending order.
func (s *ExitState) FiredIndexes() []int {
	out := make([]int, 0, len(s.Fired))
	for k, v := range s.Fired {
		if v {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// Stage reports the lifecycle stage.
func (s *ExitState) Stage() ExitStage {
	switch {
	case s.Closed:
		return StageFullyExited
	case s.FiredCount() > 0:
		return StagePartiallyExited
	default:
		return StageEntered
	}
}

// ExitOrder is a SELL proposed by the exit engine.
type ExitOrder struct {
	Asset    string
	Quantity decimal.Decimal
	Price    decimal.Decimal // price observed when the order was proposed
	Reason   ExitReason
	Level    int  // index of the fired level, -1 for stop exits
	Final    bool // order liquidates the remaining quantity
}
