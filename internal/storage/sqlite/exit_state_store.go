package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// ExitStateStore implements storage.ExitStateStore on SQLite.
// Fired level indexes are stored as a JSON array.
type ExitStateStore struct {
	db *DB
}

// NewExitStateStore creates a new ExitStateStore.
func NewExitStateStore(db *DB) *ExitStateStore {
	return &ExitStateStore{db: db}
}

var _ storage.ExitStateStore = (*ExitStateStore)(nil)

const selectExitStateColumns = `
	SELECT asset, original_quantity, fired_levels, trailing_armed,
	       high_water, closed, updated_at_ms
	FROM exit_states`

// Get returns the state for asset.
func (s *ExitStateStore) Get(ctx context.Context, asset string) (*domain.ExitState, error) {
	rows, err := s.db.QueryContext(ctx, selectExitStateColumns+` WHERE asset = ?`, asset)
	if err != nil {
		return nil, fmt.Errorf("get exit state: %w", err)
	}
	defer rows.Close()

	states, err := scanExitStates(rows)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, storage.ErrNotFound
	}
	return states[0], nil
}

// Put upserts the state.
func (s *ExitStateStore) Put(ctx context.Context, st *domain.ExitState) error {
	if st == nil || st.Asset == "" {
		return storage.ErrInvalidInput
	}
	fired, err := json.Marshal(st.FiredIndexes())
	if err != nil {
		return fmt.Errorf("encode fired levels: %w", err)
	}
	var highWater sql.NullString
	if st.TrailingArmed {
		highWater = sql.NullString{String: st.HighWater.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exit_states (
			asset, original_quantity, fired_levels, trailing_armed,
			high_water, closed, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset) DO UPDATE SET
			original_quantity = excluded.original_quantity,
			fired_levels      = excluded.fired_levels,
			trailing_armed    = excluded.trailing_armed,
			high_water        = excluded.high_water,
			closed            = excluded.closed,
			updated_at_ms     = excluded.updated_at_ms
	`, st.Asset, st.OriginalQuantity.String(), string(fired), st.TrailingArmed, highWater, st.Closed, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put exit state: %w", err)
	}
	return nil
}

// Delete removes the state for asset.
func (s *ExitStateStore) Delete(ctx context.Context, asset string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exit_states WHERE asset = ?`, asset); err != nil {
		return fmt.Errorf("delete exit state: %w", err)
	}
	return nil
}

// List returns all states ordered by asset.
func (s *ExitStateStore) List(ctx context.Context) ([]*domain.ExitState, error) {
	rows, err := s.db.QueryContext(ctx, selectExitStateColumns+` ORDER BY asset ASC`)
	if err != nil {
		return nil, fmt.Errorf("list exit states: %w", err)
	}
	defer rows.Close()
	return scanExitStates(rows)
}

func scanExitStates(rows *sql.Rows) ([]*domain.ExitState, error) {
	var out []*domain.ExitState
	for rows.Next() {
		var (
			st        domain.ExitState
			origQty   string
			fired     string
			highWater sql.NullString
		)
		if err := rows.Scan(&st.Asset, &origQty, &fired, &st.TrailingArmed, &highWater, &st.Closed, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan exit state: %w", err)
		}
		var err error
		if st.OriginalQuantity, err = decimal.NewFromString(origQty); err != nil {
			return nil, fmt.Errorf("parse original quantity for %s: %w", st.Asset, err)
		}
		var idx []int
		if err := json.Unmarshal([]byte(fired), &idx); err != nil {
			return nil, fmt.Errorf("decode fired levels for %s: %w", st.Asset, err)
		}
		st.Fired = make(map[int]bool, len(idx))
		for _, i := range idx {
			st.Fired[i] = true
		}
		if highWater.Valid {
			if st.HighWater, err = decimal.NewFromString(highWater.String); err != nil {
				return nil, fmt.Errorf("parse high water for %s: %w", st.Asset, err)
			}
		}
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit states: %w", err)
	}
	return out, nil
}
