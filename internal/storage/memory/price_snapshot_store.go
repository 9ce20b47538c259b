package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// PriceSnapshotStore is an in-memory implementation of storage.PriceSnapshotStore.
// Points for one asset are kept sorted by timestamp.
type PriceSnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PricePoint // keyed by asset
}

// NewPriceSnapshotStore creates a new in-memory price snapshot store.
func NewPriceSnapshotStore() *PriceSnapshotStore {
	return &PriceSnapshotStore{
		data: make(map[string][]*domain.PricePoint),
	}
}

// InsertBulk adds multiple points. Fails the entire batch on invalid input.
func (s *PriceSnapshotStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.Asset == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, p := range points {
		pointCopy := *p
		s.data[p.Asset] = append(s.data[p.Asset], &pointCopy)
		touched[p.Asset] = struct{}{}
	}
	for asset := range touched {
		series := s.data[asset]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].TimestampMs < series[j].TimestampMs
		})
	}
	return nil
}

// GetByTimeRange retrieves points for an asset within [start, end] (inclusive).
func (s *PriceSnapshotStore) GetByTimeRange(_ context.Context, asset string, start, end int64) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data[asset] {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}
	return result, nil
}

// RecentCloses returns up to n most recent prices, oldest first.
func (s *PriceSnapshotStore) RecentCloses(_ context.Context, asset string, n int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[asset]
	if n <= 0 || len(series) == 0 {
		return nil, nil
	}
	if len(series) > n {
		series = series[len(series)-n:]
	}
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Price
	}
	return out, nil
}

var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)
