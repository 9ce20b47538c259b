package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Each Append inserts the trade record and moves the account balance in one
// transaction, holding a row lock on the account.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO account (id, opening_balance, balance)
		VALUES (1, $1, $1)
		ON CONFLICT (id) DO NOTHING
	`, opening)
	if err != nil {
		return decimal.Zero, classify("init account", err)
	}

	return s.Balance(ctx)
}

// Append inserts rec and applies its balance delta atomically.
func (s *LedgerStore) Append(ctx context.Context, rec *domain.TradeRecord) (domain.RecordID, error) {
	if err := storage.ValidateRecord(rec); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classify("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM account WHERE id = 1 FOR UPDATE`).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrAccountNotInitialized
		}
		return 0, classify("lock account", err)
	}

	next := balance.Add(rec.BalanceDelta())
	if next.IsNegative() {
		return 0, storage.ErrInsufficientFunds
	}

	var gain, costBasis decimal.NullDecimal
	var pctChange, multiple *float64
	if rec.Realized != nil {
		gain = decimal.NewNullDecimal(rec.Realized.Gain)
		costBasis = decimal.NewNullDecimal(rec.Realized.CostBasis)
		pctChange = &rec.Realized.PctChange
		multiple = &rec.Realized.PriceMultiple
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO trade_records (
			asset, side, amount, price, timestamp_ms, tx_ref,
			gain, pct_change, price_multiple, cost_basis
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		rec.Asset, string(rec.Side), rec.Amount, rec.Price, rec.Timestamp, rec.TxRef,
		gain, pctChange, multiple, costBasis,
	).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, classify("insert trade record", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE account SET balance = $1, updated_at = now() WHERE id = 1
	`, next)
	if err != nil {
		if isCheckViolation(err) {
			return 0, storage.ErrInsufficientFunds
		}
		return 0, classify("update balance", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify("commit transaction", err)
	}

	rec.ID = domain.RecordID(id)
	return rec.ID, nil
}

// Snapshot reads records and balance inside one REPEATABLE READ transaction.
func (s *LedgerStore) Snapshot(ctx context.Context) (*storage.LedgerSnapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, classify("begin snapshot", err)
	}
	defer tx.Rollback(ctx)

	snap := &storage.LedgerSnapshot{}
	err = tx.QueryRow(ctx, `SELECT balance, opening_balance FROM account WHERE id = 1`).
		Scan(&snap.Balance, &snap.Opening)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrAccountNotInitialized
		}
		return nil, classify("read account", err)
	}

	rows, err := tx.Query(ctx, selectRecordColumns+` ORDER BY id ASC`)
	if err != nil {
		return nil, classify("query trade records", err)
	}
	defer rows.Close()

	snap.Records, err = scanTradeRecords(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify("commit snapshot", err)
	}
	return snap, nil
}

// List returns records newest first.
func (s *LedgerStore) List(ctx context.Context, filter storage.ListFilter) ([]*domain.TradeRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Asset != "" {
		args = append(args, filter.Asset)
		where = append(where, fmt.Sprintf("asset = $%d", len(args)))
	}

	query := selectRecordColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list trade records", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// Balance returns the current account balance.
func (s *LedgerStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, `SELECT balance FROM account WHERE id = 1`).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, storage.ErrAccountNotInitialized
		}
		return decimal.Zero, classify("read balance", err)
	}
	return balance, nil
}

// Reset truncates trade_records and restores the opening balance.
func (s *LedgerStore) Reset(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("begin reset", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE trade_records RESTART IDENTITY`); err != nil {
		return classify("truncate trade records", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE account SET balance = opening_balance, updated_at = now() WHERE id = 1`)
	if err != nil {
		return classify("restore balance", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotInitialized
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit reset", err)
	}
	return nil
}

// scanTradeRecords scans multiple rows into a slice.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var records []*domain.TradeRecord

	for rows.Next() {
		var (
			r         domain.TradeRecord
			id        int64
			side      string
			gain      decimal.NullDecimal
			costBasis decimal.NullDecimal
			pctChange *float64
			multiple  *float64
		)
		err := rows.Scan(
			&id, &r.Asset, &side, &r.Amount, &r.Price, &r.Timestamp, &r.TxRef,
			&gain, &pctChange, &multiple, &costBasis,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		r.ID = domain.RecordID(id)
		r.Side = domain.Side(side)
		if gain.Valid {
			r.Realized = &domain.RealizedGain{Gain: gain.Decimal}
			if pctChange != nil {
				r.Realized.PctChange = *pctChange
			}
			if multiple != nil {
				r.Realized.PriceMultiple = *multiple
			}
			if costBasis.Valid {
				r.Realized.CostBasis = costBasis.Decimal
			}
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate trade records", err)
	}
	return records, nil
}
