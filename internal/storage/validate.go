package storage

import (
	"fmt"

	"solana-trader/internal/domain"
)

// ValidateRecord checks the fields every ledger backend relies on.
func ValidateRecord(rec *domain.TradeRecord) error {
	if rec == nil {
		return ErrInvalidInput
	}
	if rec.Asset == "" {
		return fmt.Errorf("%w: empty asset", ErrInvalidInput)
	}
	if !rec.Side.IsValid() {
		return fmt.Errorf("%w: side %q", ErrInvalidInput, rec.Side)
	}
	if rec.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if rec.Price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if rec.Side == domain.SideBuy && rec.Realized != nil {
		return fmt.Errorf("%w: realized gain on BUY", ErrInvalidInput)
	}
	return nil
}
