package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
)

// LedgerSnapshot is a consistent view of every record and the balance.
type LedgerSnapshot struct {
	Records []*domain.TradeRecord // ascending by ID
	Balance decimal.Decimal
	Opening decimal.Decimal
}

// ListFilter narrows History queries.
type ListFilter struct {
	Asset string // empty means all assets
	Limit int    // 0 means no limit
}

// LedgerStore persists trade_records together with the account balance.
type LedgerStore interface {
	// InitAccount creates the account with the opening balance if it does not
	// exist yet. Returns the current balance either way.
	InitAccount(ctx context.Context, opening decimal.Decimal) (decimal.Decimal, error)

	// Append assigns the record ID and applies rec.BalanceDelta() to the balance
	// in one atomic step. Returns ErrInsufficientFunds if the balance would go
	// negative and ErrInvalidInput for malformed records.
	Append(ctx context.Context, rec *domain.TradeRecord) (domain.RecordID, error)

	// Snapshot returns all records and the balance from a single consistent read.
	Snapshot(ctx context.Context) (*LedgerSnapshot, error)

	// List returns records newest first.
	List(ctx context.Context, filter ListFilter) ([]*domain.TradeRecord, error)

	// Balance returns the current account balance.
	Balance(ctx context.Context) (decimal.Decimal, error)

	// Reset removes every record and restores the opening balance.
	Reset(ctx context.Context) error
}

// ExitStateStore provides typed access to per-asset exit state.
type ExitStateStore interface {
	// Get returns the state for asset. Returns ErrNotFound if none.
	Get(ctx context.Context, asset string) (*domain.ExitState, error)

	// Put inserts or replaces the state for s.Asset.
	Put(ctx context.Context, s *domain.ExitState) error

	// Delete removes the state for asset. Missing state is not an error.
	Delete(ctx context.Context, asset string) error

	// List returns all states ordered by asset.
	List(ctx context.Context) ([]*domain.ExitState, error)
}

// PriceSnapshotStore provides access to price_snapshots storage.
type PriceSnapshotStore interface {
	// InsertBulk adds multiple points.
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetByTimeRange retrieves points for an asset within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, asset string, start, end int64) ([]*domain.PricePoint, error)

	// RecentCloses returns up to n most recent prices for asset, oldest first.
	RecentCloses(ctx context.Context, asset string, n int) ([]float64, error)
}
