// Package orchestrator runs the trading loop.
// Each tick: resolve unconfirmed orders → refresh balance → fetch candidates
// → score → size → buy and record → re-price open positions and drive the
// exit engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/discovery"
	"solana-trader/internal/domain"
	"solana-trader/internal/events"
	"solana-trader/internal/execution"
	"solana-trader/internal/idgen"
	"solana-trader/internal/ledger"
	"solana-trader/internal/observability"
	"solana-trader/internal/sizing"
	"solana-trader/internal/storage"
)

// Ledger is the subset of *ledger.Ledger the loop needs.
type Ledger interface {
	Record(ctx context.Context, req ledger.RecordRequest) (domain.RecordID, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	History(ctx context.Context, filter ledger.HistoryFilter) ([]*domain.TradeRecord, error)
}

// Positions lists open positions. *position.Accessor implements it.
type Positions interface {
	OpenPositions(ctx context.Context) ([]domain.Position, error)
}

// Scorer evaluates candidates. *alpha.Scorer implements it.
type Scorer interface {
	Score(ctx context.Context, c domain.Candidate) domain.FactorScore
}

// ExitEngine proposes and confirms staged exits. *exit.Engine implements it.
type ExitEngine interface {
	Evaluate(ctx context.Context, pos domain.Position, price decimal.Decimal) ([]domain.ExitOrder, error)
	Confirm(ctx context.Context, order domain.ExitOrder) error
	Sweep(ctx context.Context, open []domain.Position) error
}

// Guard gates new entries. *safety.Guard implements it.
type Guard interface {
	CanEnter(balance decimal.Decimal, openPositions int) error
	RecordTrade(pnl decimal.Decimal)
}

// Options for creating an Orchestrator. Guard, Prices, Events and Metrics
// are optional.
type Options struct {
	Config    Config
	Sizing    sizing.Config
	Ledger    Ledger
	Positions Positions
	Feed      discovery.Feed
	Pricer    discovery.Pricer
	Scorer    Scorer
	Exits     ExitEngine
	Execution execution.Client

	Guard   Guard
	Prices  storage.PriceSnapshotStore
	Events  events.Publisher
	Metrics *observability.Metrics

	Now    func() time.Time
	Logger logrus.FieldLogger
}

// TickResult summarizes one tick.
type TickResult struct {
	ID            string        `json:"id"`
	Started       time.Time     `json:"started"`
	Duration      time.Duration `json:"duration"`
	Candidates    int           `json:"candidates"`
	Entries       int           `json:"entries"`
	Skipped       int           `json:"skipped"`
	Exits         int           `json:"exits"`
	Failures      int           `json:"failures"`
	OpenPositions int           `json:"open_positions"`
}

// Status is the loop state exposed on /status.
type Status struct {
	Ticks         int64       `json:"ticks"`
	FailedTicks   int64       `json:"failed_ticks"`
	LastTick      *TickResult `json:"last_tick,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
	LastSuccess   time.Time   `json:"last_success,omitempty"`
	PendingOrders int         `json:"pending_orders"`
}

// Orchestrator drives ticks. Ticks never overlap; per-asset work inside a
// tick runs concurrently up to Config.MaxConcurrency.
type Orchestrator struct {
	cfg       Config
	sizing    sizing.Config
	ledger    Ledger
	positions Positions
	feed      discovery.Feed
	pricer    discovery.Pricer
	scorer    Scorer
	exits     ExitEngine
	exec      execution.Client
	guard     Guard
	prices    storage.PriceSnapshotStore
	events    events.Publisher
	metrics   *observability.Metrics
	now       func() time.Time
	log       logrus.FieldLogger

	tickMu sync.Mutex
	locks  assetLocks

	statusMu sync.RWMutex
	status   Status

	pendingMu sync.Mutex
	pending   map[string]*pendingOrder // by asset
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:       opts.Config,
		sizing:    opts.Sizing,
		ledger:    opts.Ledger,
		positions: opts.Positions,
		feed:      opts.Feed,
		pricer:    opts.Pricer,
		scorer:    opts.Scorer,
		exits:     opts.Exits,
		exec:      opts.Execution,
		guard:     opts.Guard,
		prices:    opts.Prices,
		events:    opts.Events,
		metrics:   opts.Metrics,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if o.cfg == (Config{}) {
		o.cfg = DefaultConfig()
	}
	if o.cfg.MaxConcurrency <= 0 {
		o.cfg.MaxConcurrency = 1
	}
	if o.events == nil {
		o.events = events.Noop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	o.log = o.log.WithField("component", "orchestrator")
	return o
}

// Run ticks on every ticker signal until ctx is done. A failed tick is
// followed by an exponential backoff before the next one is accepted.
func (o *Orchestrator) Run(ctx context.Context, ticker Ticker) error {
	defer ticker.Stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.ErrorBackoff
	b.MaxInterval = o.cfg.MaxErrorBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	o.log.WithField("interval", o.cfg.TickInterval.String()).Info("trading loop started")
	for {
		select {
		case <-ctx.Done():
			o.log.Info("trading loop stopped")
			return ctx.Err()
		case <-ticker.C():
		}

		if _, err := o.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := b.NextBackOff()
			o.log.WithError(err).WithField("backoff", wait.String()).Error("tick failed")
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		b.Reset()
	}
}

// Status returns a copy of the loop state.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	s := o.status
	if s.LastTick != nil {
		last := *s.LastTick
		s.LastTick = &last
	}
	s.PendingOrders = len(o.pendingAssets())
	return s
}

// tick carries the state shared by the per-asset workers of one tick.
type tick struct {
	id      string
	log     logrus.FieldLogger
	balance decimal.Decimal
	kelly   *float64

	mu        sync.Mutex
	available decimal.Decimal
	open      int
	points    []*domain.PricePoint
	result    TickResult
}

func (tk *tick) count(fn func(r *TickResult)) {
	tk.mu.Lock()
	fn(&tk.result)
	tk.mu.Unlock()
}

func (tk *tick) addPoint(p *domain.PricePoint) {
	tk.mu.Lock()
	tk.points = append(tk.points, p)
	tk.mu.Unlock()
}

// Tick runs one pass. Only ledger or position read failures fail the tick;
// per-asset failures are logged and counted in the result.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	started := o.now()
	tk := &tick{id: idgen.At(started)}
	tk.log = o.log.WithField("tick", tk.id)
	tk.result.ID = tk.id
	tk.result.Started = started

	err := o.runTick(ctx, tk)

	tk.result.Duration = o.now().Sub(started)
	if o.metrics != nil {
		o.metrics.RecordTick(tk.result.Duration, err)
	}
	o.finish(tk.result, err)

	entry := tk.log.WithFields(logrus.Fields{
		"candidates": tk.result.Candidates,
		"entries":    tk.result.Entries,
		"exits":      tk.result.Exits,
		"failures":   tk.result.Failures,
		"duration":   tk.result.Duration.String(),
	})
	if err != nil {
		entry.WithError(err).Warn("tick aborted")
	} else {
		entry.Info("tick complete")
	}
	return tk.result, err
}

func (o *Orchestrator) runTick(ctx context.Context, tk *tick) error {
	o.resolvePending(ctx, tk)

	balance, err := o.ledger.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	tk.balance = balance
	tk.available = balance
	o.reconcile(ctx, tk)

	open, err := o.positions.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("open positions: %w", err)
	}
	tk.open = len(open)

	o.enterAll(ctx, tk, open)

	// Re-read so positions opened this tick are monitored immediately.
	open, err = o.positions.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("open positions: %w", err)
	}
	if err := o.exits.Sweep(ctx, open); err != nil {
		tk.log.WithError(err).Warn("exit state sweep failed")
	}
	o.monitorAll(ctx, tk, open)

	open, err = o.positions.OpenPositions(ctx)
	if err == nil {
		tk.result.OpenPositions = len(open)
		if o.metrics != nil {
			o.metrics.OpenPositions.Set(float64(len(open)))
		}
	}

	o.flushPrices(ctx, tk)
	return nil
}

// reconcile compares the execution client balance with the ledger. The
// ledger stays authoritative; drift is reported only.
func (o *Orchestrator) reconcile(ctx context.Context, tk *tick) {
	ledgerBal := tk.balance.InexactFloat64()

	var execBal decimal.Decimal
	err := o.call(ctx, "execution", "balance", "", o.cfg.CallTimeout, func(cctx context.Context) error {
		var err error
		execBal, err = o.exec.Balance(cctx)
		return err
	})
	if err != nil {
		tk.log.WithError(err).Warn("execution balance unavailable")
		if o.metrics != nil {
			o.metrics.UpdateBalances(ledgerBal, nil)
		}
		return
	}

	eb := execBal.InexactFloat64()
	if o.metrics != nil {
		o.metrics.UpdateBalances(ledgerBal, &eb)
	}
	if drift := execBal.Sub(tk.balance).Abs(); drift.GreaterThan(decimal.NewFromFloat(o.cfg.DriftTolerance)) {
		tk.log.WithFields(logrus.Fields{
			"ledger_balance":    tk.balance.String(),
			"execution_balance": execBal.String(),
			"drift":             drift.String(),
		}).Warn("balance drift")
	}
}

// call runs fn under timeout, records latency and wraps failures in a
// *domain.CollaboratorError.
func (o *Orchestrator) call(ctx context.Context, collaborator, op, asset string, timeout time.Duration, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	if o.metrics != nil {
		o.metrics.RecordCall(collaborator, op, time.Since(start), err)
	}
	if err != nil {
		return &domain.CollaboratorError{Collaborator: collaborator, Op: op, Asset: asset, Err: err}
	}
	return nil
}

// record writes to the ledger on a context detached from ctx's
// cancellation so a fill that already happened is not lost on shutdown.
func (o *Orchestrator) record(ctx context.Context, req ledger.RecordRequest) error {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LedgerTimeout)
	defer cancel()

	if _, err := o.ledger.Record(lctx, req); err != nil {
		if o.metrics != nil {
			o.metrics.LedgerWriteErrors.Inc()
		}
		return err
	}
	return nil
}

// realized returns the gain of the newest SELL for asset.
func (o *Orchestrator) realized(ctx context.Context, asset string) decimal.Decimal {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LedgerTimeout)
	defer cancel()

	recs, err := o.ledger.History(lctx, ledger.HistoryFilter{Asset: asset, Limit: 1})
	if err != nil || len(recs) == 0 {
		return decimal.Zero
	}
	if r := recs[0]; r.Side == domain.SideSell && r.Realized != nil {
		return r.Realized.Gain
	}
	return decimal.Zero
}

func (o *Orchestrator) publish(ctx context.Context, kind events.Kind, asset string, payload interface{}) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CallTimeout)
	defer cancel()

	if err := o.events.Publish(pctx, events.Event{Kind: kind, Asset: asset, At: o.now().UTC(), Payload: payload}); err != nil {
		o.log.WithError(err).WithField("kind", kind).Warn("publish event")
	}
}

func (o *Orchestrator) flushPrices(ctx context.Context, tk *tick) {
	if o.prices == nil || !o.cfg.RecordPrices || len(tk.points) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CallTimeout)
	defer cancel()

	if err := o.prices.InsertBulk(pctx, tk.points); err != nil {
		tk.log.WithError(err).WithField("points", len(tk.points)).Warn("price snapshot write failed")
	}
}

func (o *Orchestrator) finish(r TickResult, err error) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()

	o.status.Ticks++
	o.status.LastTick = &r
	if err != nil {
		o.status.FailedTicks++
		o.status.LastError = err.Error()
		return
	}
	o.status.LastError = ""
	o.status.LastSuccess = r.Started.Add(r.Duration)
}

// assetLocks serializes mutations per asset.
type assetLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *assetLocks) lock(asset string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[asset]
	if !ok {
		m = &sync.Mutex{}
		l.locks[asset] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
