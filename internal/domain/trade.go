package domain

import "github.com/shopspring/decimal"

// RecordID identifies a TradeRecord. Assigned by the ledger store, increasing.
type RecordID int64

// TradeRecord is one executed buy or sell. Corresponds to trade_records table.
// Records are immutable once appended.
type TradeRecord struct {
	ID        RecordID
	Asset     string          // token mint address
	Side      Side            // BUY | SELL
	Amount    decimal.Decimal // BUY: base currency committed, SELL: quantity liquidated
	Price     decimal.Decimal // unit price at fill
	Timestamp int64           // Unix timestamp in milliseconds (UTC)
	TxRef     string          // execution transaction reference

	// Realized is set for SELL records only.
	Realized *RealizedGain
}

// RealizedGain holds the realized outcome of a SELL against its cost basis.
type RealizedGain struct {
	Gain          decimal.Decimal // proceeds - cost, base currency
	PctChange     float64         // price / cost_basis - 1
	PriceMultiple float64         // price / cost_basis
	CostBasis     decimal.Decimal // entry price the sale was matched against
}

// Proceeds returns the base currency returned to the account by a SELL.
// For a BUY it returns zero.
func (r *TradeRecord) Proceeds() decimal.Decimal {
	if r.Side != SideSell {
		return decimal.Zero
	}
	if r.Realized == nil {
		return r.Amount
	}
	return r.Amount.Add(r.Realized.Gain)
}

// BalanceDelta returns the change applied to the account balance when
// the record is appended: negative for BUY, positive proceeds for SELL.
func (r *TradeRecord) BalanceDelta() decimal.Decimal {
	if r.Side == SideBuy {
		return r.Amount.Neg()
	}
	return r.Proceeds()
}
