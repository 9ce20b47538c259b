// Package position derives open positions from a ledger snapshot.
//
// Positions are never stored. Each call groups the records by asset and
// replays them in ID order; a quantity that returns to zero closes the cycle,
// so a later BUY of the same asset opens a fresh position with its own
// average entry price and OpenedAt.
package position

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// SnapshotSource supplies a consistent ledger snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*storage.LedgerSnapshot, error)
}

// Accessor returns open positions on demand.
type Accessor struct {
	src SnapshotSource
}

// NewAccessor creates an Accessor reading from src.
func NewAccessor(src SnapshotSource) *Accessor {
	return &Accessor{src: src}
}

// OpenPositions returns positions with quantity > 0, ordered by asset.
func (a *Accessor) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	snap, err := a.src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Derive(snap.Records), nil
}

// Lookup returns the open position for asset, if any.
func (a *Accessor) Lookup(ctx context.Context, asset string) (domain.Position, bool, error) {
	positions, err := a.OpenPositions(ctx)
	if err != nil {
		return domain.Position{}, false, err
	}
	for _, p := range positions {
		if p.Asset == asset {
			return p, true, nil
		}
	}
	return domain.Position{}, false, nil
}

// Derive folds records into open positions. Records need not be sorted;
// they are replayed in ID order. Assets whose quantity is zero (including
// assets with only SELL records) are omitted.
func Derive(records []*domain.TradeRecord) []domain.Position {
	sorted := make([]*domain.TradeRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	cycles := make(map[string]*cycle)
	for _, r := range sorted {
		c, ok := cycles[r.Asset]
		if !ok {
			c = &cycle{}
			cycles[r.Asset] = c
		}
		c.apply(r)
	}

	out := make([]domain.Position, 0, len(cycles))
	for asset, c := range cycles {
		if c.quantity().Sign() <= 0 {
			continue
		}
		out = append(out, c.position(asset))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Asset < out[j].Asset
	})
	return out
}

// Cycle returns the current holding cycle for asset together with its BUY
// records in ID order. ok is false when the asset has no open quantity.
func Cycle(records []*domain.TradeRecord, asset string) (pos domain.Position, buys []*domain.TradeRecord, ok bool) {
	var own []*domain.TradeRecord
	for _, r := range records {
		if r != nil && r.Asset == asset {
			own = append(own, r)
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].ID < own[j].ID
	})

	c := &cycle{}
	for _, r := range own {
		c.apply(r)
	}
	if c.quantity().Sign() <= 0 {
		return domain.Position{}, nil, false
	}
	return c.position(asset), c.buys, true
}

// cycle accumulates one holding period of an asset.
type cycle struct {
	bought   decimal.Decimal // sum(BUY.amount)
	sold     decimal.Decimal // sum(SELL.amount)
	notional decimal.Decimal // sum(BUY.amount * BUY.price)
	openedAt int64
	buys     []*domain.TradeRecord
}

func (c *cycle) quantity() decimal.Decimal {
	return c.bought.Sub(c.sold)
}

func (c *cycle) apply(r *domain.TradeRecord) {
	switch r.Side {
	case domain.SideBuy:
		if c.quantity().Sign() <= 0 {
			*c = cycle{openedAt: r.Timestamp}
		}
		c.bought = c.bought.Add(r.Amount)
		c.notional = c.notional.Add(r.Amount.Mul(r.Price))
		c.buys = append(c.buys, r)
		if r.Timestamp < c.openedAt {
			c.openedAt = r.Timestamp
		}
	case domain.SideSell:
		if c.quantity().Sign() <= 0 {
			// Nothing held; a SELL without a matching BUY clamps to zero.
			return
		}
		c.sold = c.sold.Add(r.Amount)
		if c.quantity().Sign() <= 0 {
			*c = cycle{}
		}
	}
}

func (c *cycle) position(asset string) domain.Position {
	avg := decimal.Zero
	if c.bought.Sign() > 0 {
		avg = c.notional.Div(c.bought)
	}
	return domain.Position{
		Asset:         asset,
		Quantity:      c.quantity(),
		AvgEntryPrice: avg,
		OpenedAt:      c.openedAt,
		BoughtTotal:   c.bought,
		SoldTotal:     c.sold,
	}
}
