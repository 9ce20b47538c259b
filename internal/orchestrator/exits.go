package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-trader/internal/domain"
	"solana-trader/internal/events"
	"solana-trader/internal/execution"
	"solana-trader/internal/ledger"
)

// monitorAll re-prices every open position and executes the exits the
// engine proposes. A failure on one asset does not stop the others.
func (o *Orchestrator) monitorAll(ctx context.Context, tk *tick, open []domain.Position) {
	pending := make(map[string]bool)
	for _, asset := range o.pendingAssets() {
		pending[asset] = true
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for _, pos := range open {
		if pending[pos.Asset] {
			continue
		}
		g.Go(func() error {
			if err := o.monitor(ctx, tk, pos); err != nil {
				tk.count(func(r *TickResult) { r.Failures++ })
				if !isCanceled(err) {
					tk.log.WithError(err).WithField("asset", pos.Asset).Warn("position check failed")
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) monitor(ctx context.Context, tk *tick, pos domain.Position) error {
	unlock := o.locks.lock(pos.Asset)
	defer unlock()

	var quote float64
	err := o.call(ctx, "discovery", "price", pos.Asset, o.cfg.CallTimeout, func(cctx context.Context) error {
		var err error
		quote, err = o.pricer.Price(cctx, pos.Asset)
		return err
	})
	if err != nil {
		return err
	}
	tk.addPoint(&domain.PricePoint{Asset: pos.Asset, TimestampMs: o.now().UnixMilli(), Price: quote, Source: "monitor"})

	price := decimal.NewFromFloat(quote)
	orders, err := o.exits.Evaluate(ctx, pos, price)
	if err != nil {
		return fmt.Errorf("evaluate exits: %w", err)
	}

	for _, order := range orders {
		// Later orders in the same pass assume this one filled.
		if err := o.exit(ctx, tk, order); err != nil {
			return err
		}
	}
	return nil
}

// exit sells, records and then confirms one order. The exit state only
// advances once the fill is in the ledger.
func (o *Orchestrator) exit(ctx context.Context, tk *tick, order domain.ExitOrder) error {
	var txRef string
	err := o.call(context.WithoutCancel(ctx), "execution", "sell", order.Asset, o.cfg.ExecutionTimeout, func(cctx context.Context) error {
		var err error
		txRef, err = o.exec.Sell(cctx, order.Asset, order.Quantity)
		return err
	})
	if o.metrics != nil {
		o.metrics.RecordOrder("sell", err)
	}
	if err != nil {
		if ue, ok := execution.AsUnconfirmed(err); ok {
			o.hold(tk, &pendingOrder{
				req:  ledger.RecordRequest{Asset: order.Asset, Side: domain.SideSell, Amount: order.Quantity, Price: order.Price, TxRef: ue.TxRef},
				exit: &order,
			}, err)
		}
		return err
	}
	return o.fillExit(ctx, tk, order, txRef)
}

// fillExit records a confirmed SELL, confirms it with the exit engine and
// reports it.
func (o *Orchestrator) fillExit(ctx context.Context, tk *tick, order domain.ExitOrder, txRef string) error {
	log := tk.log.WithFields(logrus.Fields{
		"asset":  order.Asset,
		"reason": order.Reason,
		"level":  order.Level,
	})

	req := ledger.RecordRequest{Asset: order.Asset, Side: domain.SideSell, Amount: order.Quantity, Price: order.Price, TxRef: txRef}
	if err := o.record(ctx, req); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"side":     domain.SideSell,
			"tx_ref":   txRef,
			"quantity": order.Quantity.String(),
		}).Error("fill not recorded")
		return err
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LedgerTimeout)
	defer cancel()
	if err := o.exits.Confirm(cctx, order); err != nil {
		// The next Evaluate recovers the level from the recorded SELL.
		log.WithError(err).Warn("exit state not updated")
	}

	gain := o.realized(ctx, order.Asset)
	if o.guard != nil {
		o.guard.RecordTrade(gain)
	}
	if o.metrics != nil {
		o.metrics.ExitsTotal.WithLabelValues(string(order.Reason)).Inc()
		if gain.Sign() > 0 {
			o.metrics.RealizedPnL.Add(gain.InexactFloat64())
		}
	}
	tk.count(func(r *TickResult) { r.Exits++ })

	log.WithFields(logrus.Fields{
		"side":     domain.SideSell,
		"quantity": order.Quantity.String(),
		"price":    order.Price.String(),
		"gain":     gain.String(),
		"final":    order.Final,
		"tx_ref":   txRef,
	}).Info("exit filled")

	o.publish(ctx, events.KindExit, order.Asset, map[string]interface{}{
		"tick":     tk.id,
		"reason":   order.Reason,
		"level":    order.Level,
		"quantity": order.Quantity.String(),
		"price":    order.Price.String(),
		"gain":     gain.String(),
		"final":    order.Final,
		"tx_ref":   txRef,
	})
	return nil
}
