package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/idgen"
)

// BalanceSource reports the paper account balance. The ledger satisfies it.
type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// SimulatedOptions for creating a Simulated client.
type SimulatedOptions struct {
	// Account is the paper balance. Simulated fills move no funds, so the
	// ledger is the account of record.
	Account BalanceSource
	// Latency delays every order to mimic confirmation time.
	Latency time.Duration
	Logger  logrus.FieldLogger
}

// Simulated fills every valid order immediately with a "sim-" reference.
type Simulated struct {
	account BalanceSource
	latency time.Duration
	log     logrus.FieldLogger

	mu       sync.Mutex
	failNext int
	failErr  error
	orders   int
}

// NewSimulated creates a paper-trading client.
func NewSimulated(opts SimulatedOptions) *Simulated {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Simulated{
		account: opts.Account,
		latency: opts.Latency,
		log:     log.WithField("component", "execution_sim"),
	}
}

// FailNext makes the next n orders fail with err.
func (s *Simulated) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failErr = err
}

// Orders returns the number of filled orders.
func (s *Simulated) Orders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders
}

// Buy fills amount if the paper balance covers it.
func (s *Simulated) Buy(ctx context.Context, asset string, amount decimal.Decimal) (string, error) {
	if err := validateOrder(asset, amount); err != nil {
		return "", err
	}
	bal, err := s.Balance(ctx)
	if err != nil {
		return "", err
	}
	if amount.GreaterThan(bal) {
		return "", fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, bal)
	}
	return s.fill(ctx, "buy", asset, amount)
}

// Sell fills any positive quantity.
func (s *Simulated) Sell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error) {
	if err := validateOrder(asset, quantity); err != nil {
		return "", err
	}
	return s.fill(ctx, "sell", asset, quantity)
}

// Balance returns the paper balance.
func (s *Simulated) Balance(ctx context.Context) (decimal.Decimal, error) {
	if s.account == nil {
		return decimal.Zero, nil
	}
	return s.account.Balance(ctx)
}

func (s *Simulated) fill(ctx context.Context, side, asset string, amount decimal.Decimal) (string, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		err := s.failErr
		s.mu.Unlock()
		return "", err
	}
	s.orders++
	s.mu.Unlock()

	ref := idgen.Prefixed("sim")
	s.log.WithFields(logrus.Fields{
		"side":   side,
		"asset":  asset,
		"amount": amount.String(),
		"tx_ref": ref,
	}).Debug("simulated fill")
	return ref, nil
}

var _ Client = (*Simulated)(nil)
