package clickhouse

import (
	"context"
	"fmt"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// PriceSnapshotStore implements storage.PriceSnapshotStore using ClickHouse.
// Snapshots are analytics data; duplicates are tolerated.
type PriceSnapshotStore struct {
	conn *Conn
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(conn *Conn) *PriceSnapshotStore {
	return &PriceSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// InsertBulk writes all points in one batch.
func (s *PriceSnapshotStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.Asset == "" || p.Price <= 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_snapshots (asset, timestamp_ms, price, volume, source)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.Asset, p.TimestampMs, p.Price, p.Volume, p.Source); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves points for an asset within [start, end] (inclusive).
func (s *PriceSnapshotStore) GetByTimeRange(ctx context.Context, asset string, start, end int64) ([]*domain.PricePoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT asset, timestamp_ms, price, volume, source
		FROM price_snapshots
		WHERE asset = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`, asset, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// RecentCloses returns up to n latest prices for asset, oldest first.
func (s *PriceSnapshotStore) RecentCloses(ctx context.Context, asset string, n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT price FROM (
			SELECT timestamp_ms, price
			FROM price_snapshots
			WHERE asset = ?
			ORDER BY timestamp_ms DESC
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC
	`, asset, uint64(n))
	if err != nil {
		return nil, fmt.Errorf("query recent closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		closes = append(closes, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closes: %w", err)
	}
	return closes, nil
}

func scanPricePoints(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Asset, &p.TimestampMs, &p.Price, &p.Volume, &p.Source); err != nil {
			return nil, fmt.Errorf("scan price snapshot row: %w", err)
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return points, nil
}
