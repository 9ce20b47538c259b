package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// ExitStateStore is an in-memory implementation of storage.ExitStateStore.
type ExitStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExitState // keyed by asset
}

// NewExitStateStore creates a new in-memory exit state store.
func NewExitStateStore() *ExitStateStore {
	return &ExitStateStore{
		data: make(map[string]*domain.ExitState),
	}
}

// Get retrieves the state for asset. Returns ErrNotFound if not exists.
func (s *ExitStateStore) Get(_ context.Context, asset string) (*domain.ExitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[asset]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

// Put inserts or replaces the state.
func (s *ExitStateStore) Put(_ context.Context, st *domain.ExitState) error {
	if st == nil || st.Asset == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[st.Asset] = st.Clone()
	return nil
}

// Delete removes the state for asset.
func (s *ExitStateStore) Delete(_ context.Context, asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, asset)
	return nil
}

// List returns all states ordered by asset.
func (s *ExitStateStore) List(_ context.Context) ([]*domain.ExitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ExitState, 0, len(s.data))
	for _, st := range s.data {
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Asset < result[j].Asset
	})
	return result, nil
}

var _ storage.ExitStateStore = (*ExitStateStore)(nil)
