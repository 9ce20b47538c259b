// Package exit drives open positions through staged profit-taking, a stop
// loss and an activatable trailing stop.
//
// The engine is two-phase. Evaluate observes a price, records trailing-stop
// progress and proposes SELL orders without marking anything fired. Confirm
// applies an order's effect once its fill has been recorded. A SELL that
// never fills therefore leaves its level unfired for the next tick. A SELL
// that was recorded but never confirmed is recovered from the position's
// sold quantity on the next Evaluate.
package exit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// QuantityScale is the precision of proposed quantities.
const QuantityScale = 9

var one = decimal.NewFromInt(1)

// Options for creating an Engine.
type Options struct {
	Config Config
	Store  storage.ExitStateStore
	Now    func() time.Time
	Logger logrus.FieldLogger
}

// Engine evaluates exit rules per position.
type Engine struct {
	levels     []domain.ExitLevel // ascending by threshold
	thresholds []decimal.Decimal
	fractions  []decimal.Decimal
	stopLoss   decimal.Decimal
	trailing   bool
	activation decimal.Decimal
	keep       decimal.Decimal // 1 - trailing distance
	cfg        Config

	store storage.ExitStateStore
	now   func() time.Time
	log   logrus.FieldLogger

	mu    sync.Mutex
	stats Stats
}

// New creates an Engine. cfg is assumed validated.
func New(opts Options) *Engine {
	levels := domain.SortLevels(opts.Config.Levels)
	e := &Engine{
		levels:     levels,
		stopLoss:   decimal.NewFromFloat(opts.Config.StopLossPct),
		trailing:   opts.Config.TrailingEnabled,
		activation: decimal.NewFromFloat(opts.Config.TrailingActivation),
		keep:       one.Sub(decimal.NewFromFloat(opts.Config.TrailingDistance)),
		cfg:        opts.Config,
		store:      opts.Store,
		now:        opts.Now,
		log:        opts.Logger,
	}
	for _, l := range levels {
		e.thresholds = append(e.thresholds, decimal.NewFromFloat(l.Threshold))
		e.fractions = append(e.fractions, decimal.NewFromFloat(l.Fraction))
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	e.log = e.log.WithField("component", "exit")
	return e
}

// Evaluate applies one price observation to pos and returns the SELL orders
// the rules call for, in execution order. Trailing-stop arming and high-water
// updates are persisted here; fired levels and termination are not.
func (e *Engine) Evaluate(ctx context.Context, pos domain.Position, price decimal.Decimal) ([]domain.ExitOrder, error) {
	if pos.Quantity.Sign() <= 0 || pos.AvgEntryPrice.Sign() <= 0 {
		return nil, nil
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price %s for %s", storage.ErrInvalidInput, price, pos.Asset)
	}

	st, dirty, err := e.load(ctx, pos)
	if err != nil {
		return nil, err
	}

	profit := price.Div(pos.AvgEntryPrice).Sub(one)

	// Stop loss wins over everything else in the same tick.
	if profit.LessThanOrEqual(e.stopLoss.Neg()) {
		if dirty {
			if err := e.put(ctx, st); err != nil {
				return nil, err
			}
		}
		return []domain.ExitOrder{{
			Asset: pos.Asset, Quantity: pos.Quantity, Price: price,
			Reason: domain.ExitReasonStopLoss, Level: -1, Final: true,
		}}, nil
	}

	var orders []domain.ExitOrder
	remaining := pos.Quantity
	for i, threshold := range e.thresholds {
		if remaining.Sign() <= 0 {
			break
		}
		if st.Fired[i] || profit.LessThan(threshold) {
			continue
		}
		qty := decimal.Min(e.levelQuantity(i, st), remaining)
		if qty.Sign() <= 0 {
			continue
		}
		remaining = remaining.Sub(qty)
		orders = append(orders, domain.ExitOrder{
			Asset: pos.Asset, Quantity: qty, Price: price,
			Reason: domain.ExitReasonPartial, Level: i, Final: remaining.Sign() <= 0,
		})
	}

	if e.trailing && remaining.Sign() > 0 {
		switch {
		case !st.TrailingArmed && profit.GreaterThanOrEqual(e.activation):
			st.TrailingArmed = true
			st.HighWater = price
			dirty = true
			e.log.WithFields(logrus.Fields{"asset": pos.Asset, "high_water": price.String()}).Info("trailing stop armed")
		case st.TrailingArmed:
			if price.GreaterThan(st.HighWater) {
				st.HighWater = price
				dirty = true
			}
			if price.LessThanOrEqual(st.HighWater.Mul(e.keep)) {
				orders = append(orders, domain.ExitOrder{
					Asset: pos.Asset, Quantity: remaining, Price: price,
					Reason: domain.ExitReasonTrailingStop, Level: -1, Final: true,
				})
			}
		}
	}

	if dirty {
		if err := e.put(ctx, st); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Confirm applies a filled order. Final orders discard the exit state.
func (e *Engine) Confirm(ctx context.Context, order domain.ExitOrder) error {
	e.mu.Lock()
	switch order.Reason {
	case domain.ExitReasonPartial:
		e.stats.PartialExits++
	case domain.ExitReasonStopLoss:
		e.stats.StopLosses++
	case domain.ExitReasonTrailingStop:
		e.stats.TrailingStops++
	}
	e.mu.Unlock()

	entry := e.log.WithFields(logrus.Fields{
		"asset":    order.Asset,
		"reason":   order.Reason,
		"quantity": order.Quantity.String(),
		"price":    order.Price.String(),
	})

	if order.Final {
		if err := e.store.Delete(ctx, order.Asset); err != nil {
			return fmt.Errorf("discard exit state: %w", err)
		}
		entry.Info("position fully exited")
		return nil
	}

	if order.Reason != domain.ExitReasonPartial || order.Level < 0 {
		return fmt.Errorf("%w: non-final %s order", storage.ErrInvalidInput, order.Reason)
	}
	st, err := e.store.Get(ctx, order.Asset)
	if err != nil {
		return fmt.Errorf("load exit state: %w", err)
	}
	st.Fired[order.Level] = true
	if err := e.put(ctx, st); err != nil {
		return err
	}
	entry.WithField("level", order.Level).Info("partial exit confirmed")
	return nil
}

// Sweep discards exit state for assets that are no longer open.
func (e *Engine) Sweep(ctx context.Context, open []domain.Position) error {
	states, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list exit states: %w", err)
	}
	live := make(map[string]bool, len(open))
	for _, p := range open {
		live[p.Asset] = true
	}
	for _, st := range states {
		if live[st.Asset] {
			continue
		}
		if err := e.store.Delete(ctx, st.Asset); err != nil {
			return fmt.Errorf("discard exit state for %s: %w", st.Asset, err)
		}
	}
	return nil
}

// Reset drops the exit state for asset.
func (e *Engine) Reset(ctx context.Context, asset string) error {
	return e.store.Delete(ctx, asset)
}

// load returns the stored state or a fresh one for a newly seen position,
// reconciled against the cycle's sold quantity. dirty reports that the
// state must be written back.
func (e *Engine) load(ctx context.Context, pos domain.Position) (*domain.ExitState, bool, error) {
	dirty := false
	st, err := e.store.Get(ctx, pos.Asset)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		st = domain.NewExitState(pos.Asset, originalQuantity(pos), e.now().UnixMilli())
		dirty = true
	case err != nil:
		return nil, false, fmt.Errorf("load exit state: %w", err)
	}
	if st.Fired == nil {
		st.Fired = make(map[int]bool)
	}
	// Original quantity follows any top-up BUY in the same cycle.
	if orig := originalQuantity(pos); orig.GreaterThan(st.OriginalQuantity) {
		st.OriginalQuantity = orig
		dirty = true
	}
	if e.reconcile(st, pos) {
		dirty = true
	}
	return st, dirty, nil
}

// reconcile marks levels fired when the ledger shows more sold in this cycle
// than the fired levels account for. That happens when a SELL was recorded
// but its Confirm never reached the store. Levels fire in ascending order
// and a failed SELL stops the rest of its batch, so the missing levels are
// the lowest unfired ones.
func (e *Engine) reconcile(st *domain.ExitState, pos domain.Position) bool {
	if pos.SoldTotal.Sign() <= 0 {
		return false
	}
	accounted := decimal.Zero
	for i := range e.fractions {
		if st.Fired[i] {
			accounted = accounted.Add(e.levelQuantity(i, st))
		}
	}
	// One unit of rounding per level.
	dust := decimal.New(int64(len(e.fractions)), -QuantityScale)

	changed := false
	for i := range e.fractions {
		if st.Fired[i] {
			continue
		}
		if pos.SoldTotal.Sub(accounted).LessThanOrEqual(dust) {
			break
		}
		st.Fired[i] = true
		accounted = accounted.Add(e.levelQuantity(i, st))
		changed = true
		e.log.WithFields(logrus.Fields{
			"asset": pos.Asset,
			"level": i,
			"sold":  pos.SoldTotal.String(),
		}).Warn("exit level recovered from ledger")
	}
	return changed
}

func (e *Engine) levelQuantity(i int, st *domain.ExitState) decimal.Decimal {
	return e.fractions[i].Mul(st.OriginalQuantity).RoundFloor(QuantityScale)
}

func (e *Engine) put(ctx context.Context, st *domain.ExitState) error {
	st.UpdatedAt = e.now().UnixMilli()
	if err := e.store.Put(ctx, st); err != nil {
		return fmt.Errorf("save exit state: %w", err)
	}
	return nil
}

func originalQuantity(pos domain.Position) decimal.Decimal {
	if pos.BoughtTotal.GreaterThan(pos.Quantity) {
		return pos.BoughtTotal
	}
	return pos.Quantity
}
