package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// LedgerStore implements storage.LedgerStore on SQLite. Amounts are stored as
// decimal strings so no precision is lost.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

const selectRecordColumns = `
	SELECT id, asset, side, amount, price, timestamp_ms, tx_ref,
	       gain, pct_change, price_multiple, cost_basis
	FROM trade_records`

// InitAccount creates the account row if missing and returns the balance.
func (s *LedgerStore) InitAccount(ctx context.Context, opening decimal.Decimal) (decimal.Decimal, error) {
	if opening.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: opening balance must be >= 0", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO account (id, opening_balance, balance) VALUES (1, ?, ?)
	`, opening.String(), opening.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("init account: %w", err)
	}
	return s.Balance(ctx)
}

// Append inserts rec and applies its balance delta in one transaction.
func (s *LedgerStore) Append(ctx context.Context, rec *domain.TradeRecord) (domain.RecordID, error) {
	if err := storage.ValidateRecord(rec); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := readBalance(ctx, tx)
	if err != nil {
		return 0, err
	}
	next := balance.Add(rec.BalanceDelta())
	if next.IsNegative() {
		return 0, storage.ErrInsufficientFunds
	}

	var gain, costBasis sql.NullString
	var pctChange, multiple sql.NullFloat64
	if rec.Realized != nil {
		gain = sql.NullString{String: rec.Realized.Gain.String(), Valid: true}
		costBasis = sql.NullString{String: rec.Realized.CostBasis.String(), Valid: true}
		pctChange = sql.NullFloat64{Float64: rec.Realized.PctChange, Valid: true}
		multiple = sql.NullFloat64{Float64: rec.Realized.PriceMultiple, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO trade_records (
			asset, side, amount, price, timestamp_ms, tx_ref,
			gain, pct_change, price_multiple, cost_basis
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Asset, string(rec.Side), rec.Amount.String(), rec.Price.String(), rec.Timestamp, rec.TxRef,
		gain, pctChange, multiple, costBasis,
	)
	if err != nil {
		return 0, fmt.Errorf("insert trade record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read record id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE account SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1
	`, next.String()); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	rec.ID = domain.RecordID(id)
	return rec.ID, nil
}

// Snapshot reads records and balance inside one transaction.
func (s *LedgerStore) Snapshot(ctx context.Context) (*storage.LedgerSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := &storage.LedgerSnapshot{}
	var balance, opening string
	err = tx.QueryRowContext(ctx, `SELECT balance, opening_balance FROM account WHERE id = 1`).
		Scan(&balance, &opening)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAccountNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}
	if snap.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if snap.Opening, err = decimal.NewFromString(opening); err != nil {
		return nil, fmt.Errorf("parse opening balance: %w", err)
	}

	rows, err := tx.QueryContext(ctx, selectRecordColumns+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w", err)
	}
	defer rows.Close()

	if snap.Records, err = scanTradeRecords(rows); err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns records newest first.
func (s *LedgerStore) List(ctx context.Context, filter storage.ListFilter) ([]*domain.TradeRecord, error) {
	query := selectRecordColumns
	var args []interface{}
	if filter.Asset != "" {
		query += ` WHERE asset = ?`
		args = append(args, filter.Asset)
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trade records: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// Balance returns the current account balance.
func (s *LedgerStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	return readBalance(ctx, s.db)
}

// Reset deletes every record and restores the opening balance.
func (s *LedgerStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_records`); err != nil {
		return fmt.Errorf("delete trade records: %w", err)
	}
	// Restart AUTOINCREMENT so IDs begin at 1 again.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'trade_records'`); err != nil {
		return fmt.Errorf("reset sequence: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE account SET balance = opening_balance, updated_at = CURRENT_TIMESTAMP WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("restore balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrAccountNotInitialized
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func readBalance(ctx context.Context, q queryer) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT balance FROM account WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, storage.ErrAccountNotInitialized
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return decimal.NewFromString(raw)
}

func scanTradeRecords(rows *sql.Rows) ([]*domain.TradeRecord, error) {
	var records []*domain.TradeRecord
	for rows.Next() {
		var (
			r                domain.TradeRecord
			id               int64
			side             string
			amount, price    string
			gain, costBasis  sql.NullString
			pctChange, multi sql.NullFloat64
		)
		if err := rows.Scan(
			&id, &r.Asset, &side, &amount, &price, &r.Timestamp, &r.TxRef,
			&gain, &pctChange, &multi, &costBasis,
		); err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}

		var err error
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of record %d: %w", id, err)
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of record %d: %w", id, err)
		}
		r.ID = domain.RecordID(id)
		r.Side = domain.Side(side)

		if gain.Valid {
			g, err := decimal.NewFromString(gain.String)
			if err != nil {
				return nil, fmt.Errorf("parse gain of record %d: %w", id, err)
			}
			r.Realized = &domain.RealizedGain{
				Gain:          g,
				PctChange:     pctChange.Float64,
				PriceMultiple: multi.Float64,
			}
			if costBasis.Valid {
				r.Realized.CostBasis, _ = decimal.NewFromString(costBasis.String)
			}
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}
	return records, nil
}
