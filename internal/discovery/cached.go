package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
)

// CachedFeedOptions for creating a CachedFeed.
type CachedFeedOptions struct {
	Source       Source
	Redis        *redis.Client
	Prefix       string
	CandidateTTL time.Duration
	PriceTTL     time.Duration
	Logger       logrus.FieldLogger
}

// CachedFeed fronts a Source with Redis so several processes and restarts
// share one view of the discovery service within the TTL. Redis failures
// fall through to the Source.
type CachedFeed struct {
	src          Source
	rdb          *redis.Client
	prefix       string
	candidateTTL time.Duration
	priceTTL     time.Duration
	log          logrus.FieldLogger
}

// NewCachedFeed creates a CachedFeed.
func NewCachedFeed(opts CachedFeedOptions) *CachedFeed {
	if opts.Prefix == "" {
		opts.Prefix = "trader:discovery"
	}
	if opts.CandidateTTL <= 0 {
		opts.CandidateTTL = 30 * time.Second
	}
	if opts.PriceTTL <= 0 {
		opts.PriceTTL = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedFeed{
		src:          opts.Source,
		rdb:          opts.Redis,
		prefix:       opts.Prefix,
		candidateTTL: opts.CandidateTTL,
		priceTTL:     opts.PriceTTL,
		log:          log.WithField("component", "discovery_cache"),
	}
}

// TopCandidates returns the cached list or refreshes it from the source.
func (f *CachedFeed) TopCandidates(ctx context.Context) ([]domain.Candidate, error) {
	key := f.prefix + ":candidates"

	cached, err := f.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []domain.Candidate
		if jerr := json.Unmarshal(cached, &out); jerr == nil {
			return out, nil
		}
		f.log.WithField("key", key).Warn("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		f.log.WithError(err).Warn("cache read failed")
	}

	out, err := f.src.TopCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if body, jerr := json.Marshal(out); jerr == nil {
		if serr := f.rdb.Set(ctx, key, body, f.candidateTTL).Err(); serr != nil {
			f.log.WithError(serr).Warn("cache write failed")
		}
	}
	return out, nil
}

// Price returns the cached quote or refreshes it from the source.
func (f *CachedFeed) Price(ctx context.Context, asset string) (float64, error) {
	key := f.prefix + ":price:" + asset

	cached, err := f.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if p, perr := strconv.ParseFloat(cached, 64); perr == nil && validPrice(p) {
			return p, nil
		}
	case !errors.Is(err, redis.Nil):
		f.log.WithError(err).Warn("cache read failed")
	}

	p, err := f.src.Price(ctx, asset)
	if err != nil {
		return 0, err
	}
	if serr := f.rdb.Set(ctx, key, strconv.FormatFloat(p, 'g', -1, 64), f.priceTTL).Err(); serr != nil {
		f.log.WithError(serr).Warn("cache write failed")
	}
	return p, nil
}

var _ Source = (*CachedFeed)(nil)
