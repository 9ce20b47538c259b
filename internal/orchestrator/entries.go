package orchestrator

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-trader/internal/domain"
	"solana-trader/internal/events"
	"solana-trader/internal/execution"
	"solana-trader/internal/ledger"
	"solana-trader/internal/safety"
	"solana-trader/internal/sizing"
)

// Skip reasons reported in metrics.
const (
	skipScore   = "score"
	skipVeto    = "veto"
	skipSafety  = "safety"
	skipBalance = "balance"
)

// enterAll scores the candidates not already held and buys the recommended
// ones. Sizing and the safety check draw from a tick-local balance so
// concurrent entries cannot overcommit.
func (o *Orchestrator) enterAll(ctx context.Context, tk *tick, open []domain.Position) {
	var candidates []domain.Candidate
	err := o.call(ctx, "discovery", "top_candidates", "", o.cfg.CallTimeout, func(cctx context.Context) error {
		var err error
		candidates, err = o.feed.TopCandidates(cctx)
		return err
	})
	if err != nil {
		tk.log.WithError(err).Warn("candidate fetch failed; entries skipped this tick")
		tk.count(func(r *TickResult) { r.Failures++ })
		return
	}

	candidates = o.filterCandidates(candidates, open)
	tk.result.Candidates = len(candidates)
	if len(candidates) == 0 {
		return
	}

	at := o.now().UnixMilli()
	for _, c := range candidates {
		tk.addPoint(&domain.PricePoint{Asset: c.Asset, TimestampMs: at, Price: c.Price, Volume: c.Volume24h, Source: "discovery"})
	}

	if hist, err := o.ledger.History(ctx, ledger.HistoryFilter{}); err != nil {
		tk.log.WithError(err).Warn("trade history unavailable; sizing without kelly")
	} else {
		tk.kelly = sizing.KellyFromHistory(hist, o.sizing.KellyMinTrades)
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for _, c := range candidates {
		g.Go(func() error {
			o.enter(ctx, tk, c)
			return nil
		})
	}
	_ = g.Wait()
}

// filterCandidates drops held assets, assets with an unresolved order and
// duplicates, then caps the list.
func (o *Orchestrator) filterCandidates(candidates []domain.Candidate, open []domain.Position) []domain.Candidate {
	held := make(map[string]bool, len(open))
	for _, p := range open {
		held[p.Asset] = true
	}
	for _, asset := range o.pendingAssets() {
		held[asset] = true
	}

	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Asset == "" || held[c.Asset] {
			continue
		}
		held[c.Asset] = true
		out = append(out, c)
		if o.cfg.MaxCandidates > 0 && len(out) == o.cfg.MaxCandidates {
			break
		}
	}
	return out
}

func (o *Orchestrator) enter(ctx context.Context, tk *tick, c domain.Candidate) {
	unlock := o.locks.lock(c.Asset)
	defer unlock()

	log := tk.log.WithField("asset", c.Asset)

	score := o.scorer.Score(ctx, c)
	if o.metrics != nil {
		o.metrics.AlphaScore.Observe(score.Combined)
	}
	if !score.Recommendation {
		reason := skipScore
		if score.Veto != "" {
			reason = skipVeto
		}
		o.skip(tk, reason)
		log.WithFields(logrus.Fields{"score": score.Combined, "veto": score.Veto}).Debug("not entering")
		return
	}

	amount, err := o.reserve(tk)
	if err != nil {
		switch {
		case errors.Is(err, safety.ErrBlocked):
			o.skip(tk, skipSafety)
			log.WithError(err).Info("entry blocked")
		case domain.IsInsufficientBalance(err):
			o.skip(tk, skipBalance)
			log.WithError(err).Info("entry skipped")
		default:
			tk.count(func(r *TickResult) { r.Failures++ })
			log.WithError(err).Warn("sizing failed")
		}
		return
	}

	// Orders outlive the tick: a submitted order is waited on even during
	// shutdown, bounded by the execution timeout.
	var txRef string
	err = o.call(context.WithoutCancel(ctx), "execution", "buy", c.Asset, o.cfg.ExecutionTimeout, func(cctx context.Context) error {
		var err error
		txRef, err = o.exec.Buy(cctx, c.Asset, amount)
		return err
	})
	if o.metrics != nil {
		o.metrics.RecordOrder("buy", err)
	}
	price := decimal.NewFromFloat(c.Price)
	if err != nil {
		tk.count(func(r *TickResult) { r.Failures++ })
		if ue, ok := execution.AsUnconfirmed(err); ok {
			// The reservation stays held; the order may still fill.
			o.hold(tk, &pendingOrder{
				req:   ledger.RecordRequest{Asset: c.Asset, Side: domain.SideBuy, Amount: amount, Price: price, TxRef: ue.TxRef},
				score: score,
			}, err)
			return
		}
		tk.release(amount)
		if !isCanceled(err) {
			log.WithError(err).WithField("amount", amount.String()).Warn("buy failed")
		}
		return
	}

	req := ledger.RecordRequest{Asset: c.Asset, Side: domain.SideBuy, Amount: amount, Price: price, TxRef: txRef}
	if err := o.fillBuy(ctx, tk, req, score); err != nil {
		tk.count(func(r *TickResult) { r.Failures++ })
	}
}

// fillBuy records a confirmed BUY and reports it.
func (o *Orchestrator) fillBuy(ctx context.Context, tk *tick, req ledger.RecordRequest, score domain.FactorScore) error {
	log := tk.log.WithField("asset", req.Asset)
	if err := o.record(ctx, req); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"side":   domain.SideBuy,
			"tx_ref": req.TxRef,
			"amount": req.Amount.String(),
		}).Error("fill not recorded")
		return err
	}

	if o.guard != nil {
		o.guard.RecordTrade(decimal.Zero)
	}
	tk.count(func(r *TickResult) { r.Entries++ })
	log.WithFields(logrus.Fields{
		"side":   domain.SideBuy,
		"amount": req.Amount.String(),
		"price":  req.Price.String(),
		"score":  score.Combined,
		"tx_ref": req.TxRef,
	}).Info("entered position")

	o.publish(ctx, events.KindFill, req.Asset, map[string]interface{}{
		"tick":    tk.id,
		"side":    domain.SideBuy,
		"amount":  req.Amount.String(),
		"price":   req.Price.String(),
		"tx_ref":  req.TxRef,
		"score":   score.Combined,
		"reasons": score.Reasons,
	})
	return nil
}

// reserve runs the safety check and sizes an entry against the tick-local
// balance, holding the amount and an open-position slot until release.
func (o *Orchestrator) reserve(tk *tick) (decimal.Decimal, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	if o.guard != nil {
		if err := o.guard.CanEnter(tk.balance, tk.open); err != nil {
			return decimal.Zero, err
		}
	}
	amount, err := sizing.SizePosition(tk.available, o.sizing, tk.kelly)
	if err != nil {
		return decimal.Zero, err
	}
	tk.available = tk.available.Sub(amount)
	tk.open++
	return amount, nil
}

func (tk *tick) release(amount decimal.Decimal) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.available = tk.available.Add(amount)
	tk.open--
}

func (o *Orchestrator) skip(tk *tick, reason string) {
	tk.count(func(r *TickResult) { r.Skipped++ })
	if o.metrics != nil {
		o.metrics.EntriesSkipped.WithLabelValues(reason).Inc()
	}
}
