package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// A single mutex covers records and balance so every append is atomic.
type LedgerStore struct {
	mu          sync.RWMutex
	records     []*domain.TradeRecord // ascending by ID
	nextID      domain.RecordID
	balance     decimal.Decimal
	opening     decimal.Decimal
	initialized bool

	// failure injection for tests
	failMu   sync.Mutex
	failErr  error
	failLeft int
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{nextID: 1}
}

// FailNext makes the next n store calls return err.
func (s *LedgerStore) FailNext(n int, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failLeft = n
	s.failErr = err
}

func (s *LedgerStore) injected() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failLeft > 0 {
		s.failLeft--
		return s.failErr
	}
	return nil
}

// InitAccount creates the account if absent and returns the balance.
func (s *LedgerStore) InitAccount(_ context.Context, opening decimal.Decimal) (decimal.Decimal, error) {
	if opening.Sign() < 0 {
		return decimal.Zero, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(); err != nil {
		return decimal.Zero, err
	}
	if !s.initialized {
		s.opening = opening
		s.balance = opening
		s.initialized = true
	}
	return s.balance, nil
}

// Append stores rec and applies its balance delta atomically.
func (s *LedgerStore) Append(_ context.Context, rec *domain.TradeRecord) (domain.RecordID, error) {
	if err := storage.ValidateRecord(rec); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(); err != nil {
		return 0, err
	}
	if !s.initialized {
		return 0, storage.ErrAccountNotInitialized
	}

	next := s.balance.Add(rec.BalanceDelta())
	if next.Sign() < 0 {
		return 0, storage.ErrInsufficientFunds
	}

	stored := copyRecord(rec)
	stored.ID = s.nextID
	s.nextID++
	s.records = append(s.records, stored)
	s.balance = next

	rec.ID = stored.ID
	return stored.ID, nil
}

// Snapshot returns all records and the balance under one read lock.
func (s *LedgerStore) Snapshot(_ context.Context) (*storage.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.injected(); err != nil {
		return nil, err
	}

	out := make([]*domain.TradeRecord, len(s.records))
	for i, r := range s.records {
		out[i] = copyRecord(r)
	}
	return &storage.LedgerSnapshot{
		Records: out,
		Balance: s.balance,
		Opening: s.opening,
	}, nil
}

// List returns records newest first.
func (s *LedgerStore) List(_ context.Context, filter storage.ListFilter) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.injected(); err != nil {
		return nil, err
	}

	var result []*domain.TradeRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if filter.Asset != "" && r.Asset != filter.Asset {
			continue
		}
		result = append(result, copyRecord(r))
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Balance returns the current balance.
func (s *LedgerStore) Balance(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.injected(); err != nil {
		return decimal.Zero, err
	}
	if !s.initialized {
		return decimal.Zero, storage.ErrAccountNotInitialized
	}
	return s.balance, nil
}

// Reset drops all records and restores the opening balance.
func (s *LedgerStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(); err != nil {
		return err
	}
	s.records = nil
	s.nextID = 1
	s.balance = s.opening
	return nil
}

func copyRecord(r *domain.TradeRecord) *domain.TradeRecord {
	c := *r
	if r.Realized != nil {
		realized := *r.Realized
		c.Realized = &realized
	}
	return &c
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
