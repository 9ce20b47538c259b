package discovery

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-trader/internal/domain"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, rdb.Ping(ctx).Err())
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// countingSource counts calls that reach the underlying feed.
type countingSource struct {
	*StaticFeed
	candidates atomic.Int32
	prices     atomic.Int32
}

func (c *countingSource) TopCandidates(ctx context.Context) ([]domain.Candidate, error) {
	c.candidates.Add(1)
	return c.StaticFeed.TopCandidates(ctx)
}

func (c *countingSource) Price(ctx context.Context, asset string) (float64, error) {
	c.prices.Add(1)
	return c.StaticFeed.Price(ctx, asset)
}

func TestCachedFeed(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	src := &countingSource{StaticFeed: NewStaticFeed(domain.Candidate{Asset: "A", Price: 2, Volume24h: 10})}
	logger, _ := test.NewNullLogger()
	f := NewCachedFeed(CachedFeedOptions{
		Source:       src,
		Redis:        rdb,
		Prefix:       "test",
		CandidateTTL: time.Minute,
		PriceTTL:     200 * time.Millisecond,
		Logger:       logger,
	})

	for i := 0; i < 3; i++ {
		got, err := f.TopCandidates(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 10.0, got[0].Volume24h)
	}
	assert.Equal(t, int32(1), src.candidates.Load())

	for i := 0; i < 3; i++ {
		p, err := f.Price(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 2.0, p)
	}
	assert.Equal(t, int32(1), src.prices.Load())

	src.SetPrice("A", 3)
	require.Eventually(t, func() bool {
		p, err := f.Price(ctx, "A")
		return err == nil && p == 3
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCachedFeed_SourceErrorNotCached(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	src := NewStaticFeed()
	logger, _ := test.NewNullLogger()
	f := NewCachedFeed(CachedFeedOptions{Source: src, Redis: rdb, Prefix: "err", Logger: logger})

	_, err := f.Price(ctx, "A")
	assert.ErrorIs(t, err, ErrNoPrice)

	src.SetPrice("A", 1)
	p, err := f.Price(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}
