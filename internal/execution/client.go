// Package execution submits BUY and SELL orders and reads the trading
// account balance.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Client executes orders. Callers check ledger state before submitting, so
// a Client never needs to deduplicate.
type Client interface {
	// Buy commits amount of base currency to asset and returns the
	// transaction reference once the fill is confirmed.
	Buy(ctx context.Context, asset string, amount decimal.Decimal) (string, error)

	// Sell liquidates quantity of asset and returns the confirmed
	// transaction reference.
	Sell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error)

	// Balance returns the base-currency balance held by the account.
	Balance(ctx context.Context) (decimal.Decimal, error)
}

var (
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// UnconfirmedError reports an order that was submitted but whose outcome
// is unknown when the call returned. TxRef identifies it for a later
// OrderStatus lookup.
type UnconfirmedError struct {
	TxRef string
	Err   error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("order %s unconfirmed: %v", e.TxRef, e.Err)
}

func (e *UnconfirmedError) Unwrap() error { return e.Err }

// AsUnconfirmed returns the *UnconfirmedError in err's chain, if any.
func AsUnconfirmed(err error) (*UnconfirmedError, bool) {
	var ue *UnconfirmedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// OrderStatus is the settled state of a submitted order.
type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderConfirmed
	OrderFailed
)

func (s OrderStatus) String() string {
	switch s {
	case OrderConfirmed:
		return "confirmed"
	case OrderFailed:
		return "failed"
	default:
		return "pending"
	}
}

// StatusChecker resolves orders that returned an *UnconfirmedError.
type StatusChecker interface {
	OrderStatus(ctx context.Context, txRef string) (OrderStatus, error)
}

// Mode selects the Client implementation.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

func validateOrder(asset string, amount decimal.Decimal) error {
	if asset == "" {
		return fmt.Errorf("%w: empty asset", ErrInvalidOrder)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount", ErrInvalidOrder)
	}
	return nil
}
