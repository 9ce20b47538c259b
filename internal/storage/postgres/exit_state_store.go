package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// ExitStateStore implements storage.ExitStateStore using PostgreSQL.
type ExitStateStore struct {
	pool *Pool
}

// NewExitStateStore creates a new ExitStateStore.
func NewExitStateStore(pool *Pool) *ExitStateStore {
	return &ExitStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExitStateStore = (*ExitStateStore)(nil)

const selectExitStateColumns = `
	SELECT asset, original_quantity, fired_levels, trailing_armed,
	       high_water, closed, updated_at_ms
	FROM exit_states`

// Get returns the state for asset.
func (s *ExitStateStore) Get(ctx context.Context, asset string) (*domain.ExitState, error) {
	rows, err := s.pool.Query(ctx, selectExitStateColumns+` WHERE asset = $1`, asset)
	if err != nil {
		return nil, classify("get exit state", err)
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

	fired := make([]int32, 0, len(st.Fired))
	for _, idx := range st.FiredIndexes() {
		fired = append(fired, int32(idx))
	}
	var highWater decimal.NullDecimal
	if st.TrailingArmed {
		highWater = decimal.NewNullDecimal(st.HighWater)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO exit_states (
			asset, original_quantity, fired_levels, trailing_armed,
			high_water, closed, updated_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset) DO UPDATE SET
			original_quantity = EXCLUDED.original_quantity,
			fired_levels      = EXCLUDED.fired_levels,
			trailing_armed    = EXCLUDED.trailing_armed,
			high_water        = EXCLUDED.high_water,
			closed            = EXCLUDED.closed,
			updated_at_ms     = EXCLUDED.updated_at_ms
	`, st.Asset, st.OriginalQuantity, fired, st.TrailingArmed, highWater, st.Closed, st.UpdatedAt)
	if err != nil {
		return classify("put exit state", err)
	}
	return nil
}

// Delete removes the state for asset.
func (s *ExitStateStore) Delete(ctx context.Context, asset string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM exit_states WHERE asset = $1`, asset); err != nil {
		return classify("delete exit state", err)
	}
	return nil
}

// List returns all states ordered by asset.
func (s *ExitStateStore) List(ctx context.Context) ([]*domain.ExitState, error) {
	rows, err := s.pool.Query(ctx, selectExitStateColumns+` ORDER BY asset ASC`)
	if err != nil {
		return nil, classify("list exit states", err)
	}
	defer rows.Close()

	return scanExitStates(rows)
}

func scanExitStates(rows pgx.Rows) ([]*domain.ExitState, error) {
	var out []*domain.ExitState
	for rows.Next() {
		var (
			st        domain.ExitState
			fired     []int32
			highWater decimal.NullDecimal
		)
		if err := rows.Scan(
			&st.Asset, &st.OriginalQuantity, &fired, &st.TrailingArmed,
			&highWater, &st.Closed, &st.UpdatedAt,
		); err != nil {
			return nil, classify("scan exit state", err)
		}
		st.Fired = make(map[int]bool, len(fired))
		for _, idx := range fired {
			st.Fired[int(idx)] = true
		}
		if highWater.Valid {
			st.HighWater = highWater.Decimal
		}
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate exit states", err)
	}
	return out, nil
}
