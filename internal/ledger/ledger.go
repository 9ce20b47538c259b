// Package ledger is the authoritative record of executed buys and sells.
//
// Every Record call appends one TradeRecord and moves the account balance in
// the same store transaction. SELLs recorded without caller-supplied realized
// figures are priced against the open cycle using the configured cost-basis
// method.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
	"solana-trader/internal/position"
	"solana-trader/internal/storage"
)

// CostBasisMethod selects how a SELL's cost basis is determined.
type CostBasisMethod string

const (
	// CostBasisAverage uses the volume-weighted average entry of the open cycle.
	CostBasisAverage CostBasisMethod = "average"
	// CostBasisFirstLot uses the price of the earliest BUY that still has
	// unmatched quantity.
	CostBasisFirstLot CostBasisMethod = "first_lot"
)

// ParseCostBasis validates a configured cost-basis name. Empty means average.
func ParseCostBasis(s string) (CostBasisMethod, error) {
	switch CostBasisMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", CostBasisAverage:
		return CostBasisAverage, nil
	case CostBasisFirstLot:
		return CostBasisFirstLot, nil
	default:
		return "", fmt.Errorf("unknown cost basis method %q", s)
	}
}

// AmountScale is the number of decimal places kept for base-currency
// amounts (lamports).
const AmountScale = 9

// RecordRequest describes one executed fill.
type RecordRequest struct {
	Asset  string
	Side   domain.Side
	Amount decimal.Decimal // BUY: base currency committed, SELL: quantity liquidated
	Price  decimal.Decimal
	TxRef  string

	// Realized, when set on a SELL, is stored as given.
	Realized *domain.RealizedGain
}

// HistoryFilter narrows History.
type HistoryFilter struct {
	Asset string
	Limit int
}

// RetryPolicy bounds retries of store writes that fail for transient reasons.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy retries for up to five seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		MaxElapsedTime:  5 * time.Second,
	}
}

// Options for creating a Ledger.
type Options struct {
	Store     storage.LedgerStore
	CostBasis CostBasisMethod
	Retry     RetryPolicy
	Now       func() time.Time   // defaults to time.Now
	Logger    logrus.FieldLogger // defaults to the standard logger
}

// Ledger records trades and owns the account balance.
type Ledger struct {
	store     storage.LedgerStore
	costBasis CostBasisMethod
	retry     RetryPolicy
	now       func() time.Time
	log       logrus.FieldLogger

	// mu serializes Record so timestamps are monotonic and the cost basis of
	// a SELL is computed against the records it will follow.
	mu     sync.Mutex
	lastTS int64
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	l := &Ledger{
		store:     opts.Store,
		costBasis: opts.CostBasis,
		retry:     opts.Retry,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if l.costBasis == "" {
		l.costBasis = CostBasisAverage
	}
	if l.retry == (RetryPolicy{}) {
		l.retry = DefaultRetryPolicy()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	l.log = l.log.WithField("component", "ledger")
	return l
}

// Open creates the account with opening if absent and loads the last
// timestamp so new records stay monotonic across restarts.
func (l *Ledger) Open(ctx context.Context, opening decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.withRetry(ctx, "init account", func() error {
		var err error
		balance, err = l.store.InitAccount(ctx, opening)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	latest, err := l.History(ctx, HistoryFilter{Limit: 1})
	if err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	if len(latest) > 0 && latest[0].Timestamp > l.lastTS {
		l.lastTS = latest[0].Timestamp
	}
	l.mu.Unlock()

	l.log.WithField("balance", balance.String()).Info("ledger opened")
	return balance, nil
}

// Record appends a fill and applies its balance change atomically.
//
// Errors: storage.ErrInvalidInput for malformed requests (including a SELL
// larger than the open quantity, with or without caller-supplied realized
// figures), storage.ErrInsufficientFunds when
// a BUY exceeds the balance, *domain.PersistenceError when the store stays
// unavailable after retries.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (domain.RecordID, error) {
	if !req.Side.IsValid() {
		return 0, fmt.Errorf("%w: side %q", storage.ErrInvalidInput, req.Side)
	}
	if req.Side == domain.SideBuy && req.Realized != nil {
		return 0, fmt.Errorf("%w: realized figures on BUY", storage.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := &domain.TradeRecord{
		Asset:    req.Asset,
		Side:     req.Side,
		Amount:   req.Amount.Round(AmountScale),
		Price:    req.Price,
		TxRef:    req.TxRef,
		Realized: req.Realized,
	}
	if err := storage.ValidateRecord(rec); err != nil {
		return 0, err
	}

	if rec.Side == domain.SideSell {
		// Runs even for caller-supplied figures: it rejects oversells.
		realized, err := l.realize(ctx, rec)
		if err != nil {
			return 0, err
		}
		if rec.Realized == nil {
			rec.Realized = realized
		}
	}

	rec.Timestamp = l.nextTimestamp()

	var id domain.RecordID
	err := l.withRetry(ctx, "append", func() error {
		var err error
		id, err = l.store.Append(ctx, rec)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.lastTS = rec.Timestamp

	entry := l.log.WithFields(logrus.Fields{
		"asset":  rec.Asset,
		"side":   rec.Side,
		"amount": rec.Amount.String(),
		"price":  rec.Price.String(),
		"tx_ref": rec.TxRef,
		"id":     id,
	})
	if rec.Realized != nil {
		entry = entry.WithField("gain", rec.Realized.Gain.String())
	}
	entry.Info("trade recorded")
	return id, nil
}

// History returns records newest first.
func (l *Ledger) History(ctx context.Context, filter HistoryFilter) ([]*domain.TradeRecord, error) {
	var out []*domain.TradeRecord
	err := l.withRetry(ctx, "list", func() error {
		var err error
		out, err = l.store.List(ctx, storage.ListFilter{Asset: filter.Asset, Limit: filter.Limit})
		return err
	})
	return out, err
}

// Snapshot returns every record with the balance from one consistent read.
func (l *Ledger) Snapshot(ctx context.Context) (*storage.LedgerSnapshot, error) {
	var snap *storage.LedgerSnapshot
	err := l.withRetry(ctx, "snapshot", func() error {
		var err error
		snap, err = l.store.Snapshot(ctx)
		return err
	})
	return snap, err
}

// Balance returns the ledger balance.
func (l *Ledger) Balance(ctx context.Context) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := l.withRetry(ctx, "balance", func() error {
		var err error
		bal, err = l.store.Balance(ctx)
		return err
	})
	return bal, err
}

// Reset drops every record and restores the opening balance.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.withRetry(ctx, "reset", func() error { return l.store.Reset(ctx) }); err != nil {
		return err
	}
	l.lastTS = 0
	l.log.Warn("ledger reset")
	return nil
}

// realize prices a SELL against the open cycle of its asset.
func (l *Ledger) realize(ctx context.Context, rec *domain.TradeRecord) (*domain.RealizedGain, error) {
	var records []*domain.TradeRecord
	err := l.withRetry(ctx, "list", func() error {
		var err error
		records, err = l.store.List(ctx, storage.ListFilter{Asset: rec.Asset})
		return err
	})
	if err != nil {
		return nil, err
	}

	pos, buys, ok := position.Cycle(records, rec.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: no open position in %s to sell", storage.ErrInvalidInput, rec.Asset)
	}
	if rec.Amount.GreaterThan(pos.Quantity) {
		return nil, fmt.Errorf("%w: sell %s exceeds open quantity %s of %s",
			storage.ErrInvalidInput, rec.Amount, pos.Quantity, rec.Asset)
	}

	basis := pos.AvgEntryPrice
	if l.costBasis == CostBasisFirstLot {
		basis = firstUnmatchedLot(buys, pos.SoldTotal)
	}
	return Realize(rec.Amount, rec.Price, basis), nil
}

// Realize computes the realized outcome of selling amount at price against
// costBasis. Gain is rounded to AmountScale.
func Realize(amount, price, costBasis decimal.Decimal) *domain.RealizedGain {
	if costBasis.Sign() <= 0 {
		return &domain.RealizedGain{Gain: decimal.Zero, PriceMultiple: 1, CostBasis: costBasis}
	}
	multiple := price.Div(costBasis)
	gain := amount.Mul(price).Div(costBasis).Sub(amount).Round(AmountScale)
	m, _ := multiple.Float64()
	return &domain.RealizedGain{
		Gain:          gain,
		PctChange:     m - 1,
		PriceMultiple: m,
		CostBasis:     costBasis,
	}
}

// firstUnmatchedLot walks the cycle's BUYs in order, consuming sold
// quantity, and returns the price of the first lot not fully matched.
func firstUnmatchedLot(buys []*domain.TradeRecord, sold decimal.Decimal) decimal.Decimal {
	remaining := sold
	for _, b := range buys {
		if remaining.LessThan(b.Amount) {
			return b.Price
		}
		remaining = remaining.Sub(b.Amount)
	}
	if len(buys) == 0 {
		return decimal.Zero
	}
	return buys[len(buys)-1].Price
}

func (l *Ledger) nextTimestamp() int64 {
	ts := l.now().UTC().UnixMilli()
	if ts <= l.lastTS {
		ts = l.lastTS + 1
	}
	return ts
}

// withRetry runs op with exponential backoff. Domain rejections are returned
// as-is; anything still failing afterwards becomes a PersistenceError.
func (l *Ledger) withRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retry.InitialInterval
	b.MaxInterval = l.retry.MaxInterval
	b.MaxElapsedTime = l.retry.MaxElapsedTime

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		l.log.WithError(err).WithFields(logrus.Fields{"op": op, "attempt": attempt}).
			Warn("ledger store call failed, retrying")
		return err
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

func isPermanent(err error) bool {
	return errors.Is(err, storage.ErrInvalidInput) ||
		errors.Is(err, storage.ErrInsufficientFunds) ||
		errors.Is(err, storage.ErrAccountNotInitialized) ||
		errors.Is(err, storage.ErrDuplicateKey) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
