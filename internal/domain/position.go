package domain

import "github.com/shopspring/decimal"

// Position is the open holding of one asset, derived from the ledger.
// Never stored.
type Position struct {
	Asset         string
	Quantity      decimal.Decimal // sum(BUY.amount) - sum(SELL.amount), always > 0
	AvgEntryPrice decimal.Decimal // volume-weighted over all BUY records
	OpenedAt      int64           // earliest entry timestamp (ms)
	BoughtTotal   decimal.Decimal // sum(BUY.amount)
	SoldTotal     decimal.Decimal // sum(SELL.amount)
}

// ProfitPct returns price / avg_entry - 1. Zero when the entry price is unknown.
func (p Position) ProfitPct(price decimal.Decimal) float64 {
	if p.AvgEntryPrice.Sign() <= 0 {
		return 0
	}
	pct, _ := price.Div(p.AvgEntryPrice).Sub(decimal.NewFromInt(1)).Float64()
	return pct
}
