package exit

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// Stats counts confirmed exits since start.
type Stats struct {
	PartialExits  int `json:"partial_exits"`
	StopLosses    int `json:"stop_losses"`
	TrailingStops int `json:"trailing_stops"`
}

// Total returns the number of confirmed exits.
func (s Stats) Total() int {
	return s.PartialExits + s.StopLosses + s.TrailingStops
}

// Summary describes exit progress for one asset.
type Summary struct {
	Asset            string           `json:"asset"`
	Stage            domain.ExitStage `json:"stage"`
	OriginalQuantity decimal.Decimal  `json:"original_quantity"`
	ExecutedLevels   []float64        `json:"executed_levels"`
	RemainingLevels  []float64        `json:"remaining_levels"`
	TrailingArmed    bool             `json:"trailing_armed"`
	HighWater        *decimal.Decimal `json:"high_water,omitempty"`
	// Moonbag is true once every level has fired and the rest rides on the
	// trailing stop.
	Moonbag bool `json:"moonbag"`
}

// Summary returns exit progress for asset. An asset with no recorded state
// reports the ENTERED stage with every level remaining.
func (e *Engine) Summary(ctx context.Context, asset string) (Summary, error) {
	st, err := e.store.Get(ctx, asset)
	if errors.Is(err, storage.ErrNotFound) {
		st = domain.NewExitState(asset, decimal.Zero, 0)
	} else if err != nil {
		return Summary{}, fmt.Errorf("load exit state: %w", err)
	}

	s := Summary{
		Asset:            asset,
		Stage:            st.Stage(),
		OriginalQuantity: st.OriginalQuantity,
		ExecutedLevels:   []float64{},
		RemainingLevels:  []float64{},
		TrailingArmed:    st.TrailingArmed,
	}
	for i, l := range e.levels {
		if st.Fired[i] {
			s.ExecutedLevels = append(s.ExecutedLevels, l.Threshold)
		} else {
			s.RemainingLevels = append(s.RemainingLevels, l.Threshold)
		}
	}
	if st.TrailingArmed {
		hw := st.HighWater
		s.HighWater = &hw
	}
	s.Moonbag = len(e.levels) > 0 && len(s.RemainingLevels) == 0 && e.trailing
	return s, nil
}

// Stats returns a copy of the exit counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}
