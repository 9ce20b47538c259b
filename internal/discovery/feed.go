// Package discovery supplies candidate assets and current prices.
//
// Feeds are best-effort: callers bound every call with a timeout and treat
// a failure as affecting the current tick only.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"

	"solana-trader/internal/domain"
)

// ErrNoPrice is returned when a feed has no price for an asset.
var ErrNoPrice = errors.New("no price available")

// Feed lists tradeable candidates.
type Feed interface {
	TopCandidates(ctx context.Context) ([]domain.Candidate, error)
}

// Pricer quotes the current price of one asset.
type Pricer interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// Source is a Feed that can also quote open positions.
type Source interface {
	Feed
	Pricer
}

// validCandidate reports whether c can be scored.
func validCandidate(c domain.Candidate) error {
	if c.Asset == "" {
		return errors.New("empty asset")
	}
	if !validPrice(c.Price) {
		return fmt.Errorf("asset %s: invalid price %v", c.Asset, c.Price)
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
