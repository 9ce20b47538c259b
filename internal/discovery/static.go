package discovery

import (
	"context"
	"fmt"
	"sync"

	"solana-trader/internal/domain"
)

// StaticFeed serves candidates and prices set in memory.
type StaticFeed struct {
	mu         sync.RWMutex
	candidates []domain.Candidate
	prices     map[string]float64
	err        error
}

// NewStaticFeed creates a feed serving candidates. Each candidate's price is
// also its quote until SetPrice overrides it.
func NewStaticFeed(candidates ...domain.Candidate) *StaticFeed {
	f := &StaticFeed{prices: make(map[string]float64)}
	f.SetCandidates(candidates...)
	return f
}

// SetCandidates replaces the candidate list.
func (f *StaticFeed) SetCandidates(candidates ...domain.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append([]domain.Candidate(nil), candidates...)
	for _, c := range candidates {
		f.prices[c.Asset] = c.Price
	}
}

// SetPrice sets the quote for asset.
func (f *StaticFeed) SetPrice(asset string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[asset] = price
}

// SetError makes every call fail with err until cleared with nil.
func (f *StaticFeed) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// TopCandidates returns the configured candidates.
func (f *StaticFeed) TopCandidates(_ context.Context) ([]domain.Candidate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Candidate(nil), f.candidates...), nil
}

// Price returns the quote for asset.
func (f *StaticFeed) Price(_ context.Context, asset string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return 0, f.err
	}
	p, ok := f.prices[asset]
	if !ok || !validPrice(p) {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	return p, nil
}

var _ Source = (*StaticFeed)(nil)
