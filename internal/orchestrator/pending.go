package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
	"solana-trader/internal/execution"
	"solana-trader/internal/ledger"
)

// pendingOrder is an order that was submitted but not confirmed before its
// call returned. Its asset is neither entered nor monitored until the order
// resolves.
type pendingOrder struct {
	req   ledger.RecordRequest
	score domain.FactorScore
	exit  *domain.ExitOrder // nil for a BUY
	since time.Time
}

func (o *Orchestrator) hold(tk *tick, p *pendingOrder, err error) {
	p.since = o.now()
	o.pendingMu.Lock()
	if o.pending == nil {
		o.pending = make(map[string]*pendingOrder)
	}
	o.pending[p.req.Asset] = p
	o.pendingMu.Unlock()

	tk.log.WithError(err).WithFields(logrus.Fields{
		"asset":  p.req.Asset,
		"side":   p.req.Side,
		"amount": p.req.Amount.String(),
		"tx_ref": p.req.TxRef,
	}).Error("order unconfirmed; holding asset until it resolves")
}

func (o *Orchestrator) pendingAssets() []string {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	assets := make([]string, 0, len(o.pending))
	for asset := range o.pending {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

func (o *Orchestrator) dropPending(asset string) {
	o.pendingMu.Lock()
	delete(o.pending, asset)
	o.pendingMu.Unlock()
}

// resolvePending asks the execution client for the outcome of every held
// order. Confirmed orders are recorded as fills, failed ones are dropped and
// the rest stay held. Clients that cannot look orders up leave them held
// for an operator.
func (o *Orchestrator) resolvePending(ctx context.Context, tk *tick) {
	assets := o.pendingAssets()
	if len(assets) == 0 {
		return
	}
	checker, ok := o.exec.(execution.StatusChecker)
	if !ok {
		tk.log.WithField("orders", len(assets)).Warn("unconfirmed orders held; execution client cannot resolve them")
		return
	}

	for _, asset := range assets {
		o.pendingMu.Lock()
		p := o.pending[asset]
		o.pendingMu.Unlock()
		if p == nil {
			continue
		}

		log := tk.log.WithFields(logrus.Fields{
			"asset":  asset,
			"side":   p.req.Side,
			"tx_ref": p.req.TxRef,
			"age":    o.now().Sub(p.since).String(),
		})

		var status execution.OrderStatus
		err := o.call(ctx, "execution", "order_status", asset, o.cfg.CallTimeout, func(cctx context.Context) error {
			var err error
			status, err = checker.OrderStatus(cctx, p.req.TxRef)
			return err
		})
		if err != nil {
			if !isCanceled(err) {
				log.WithError(err).Warn("order status unavailable")
			}
			continue
		}

		switch status {
		case execution.OrderPending:
			log.Info("order still unconfirmed")
		case execution.OrderFailed:
			o.dropPending(asset)
			log.Warn("unconfirmed order failed on chain")
		case execution.OrderConfirmed:
			if p.exit != nil {
				err = o.fillExit(ctx, tk, *p.exit, p.req.TxRef)
			} else {
				err = o.fillBuy(ctx, tk, p.req, p.score)
			}
			if err != nil {
				tk.count(func(r *TickResult) { r.Failures++ })
				continue
			}
			o.dropPending(asset)
			log.Info("unconfirmed order resolved as filled")
		}
	}
}
