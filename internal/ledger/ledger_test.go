package ledger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trader/internal/domain"
	"solana-trader/internal/position"
	"solana-trader/internal/storage"
	"solana-trader/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fixedClock always returns the same instant so monotonic bumping is visible.
func fixedClock() time.Time { return time.UnixMilli(1_700_000_000_000) }

func newLedger(t *testing.T, opening string, method CostBasisMethod) (*Ledger, *memory.LedgerStore) {
	t.Helper()

	store := memory.NewLedgerStore()
	logger, _ := test.NewNullLogger()
	l := New(Options{
		Store:     store,
		CostBasis: method,
		Retry:     RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsedTime: 50 * time.Millisecond},
		Now:       fixedClock,
		Logger:    logger,
	})
	_, err := l.Open(context.Background(), dec(opening))
	require.NoError(t, err)
	return l, store
}

func buy(asset, amount, price string) RecordRequest {
	return RecordRequest{Asset: asset, Side: domain.SideBuy, Amount: dec(amount), Price: dec(price), TxRef: "tx"}
}

func sell(asset, amount, price string) RecordRequest {
	return RecordRequest{Asset: asset, Side: domain.SideSell, Amount: dec(amount), Price: dec(price), TxRef: "tx"}
}

func TestRecord_BuyDebitsBalance(t *testing.T) {
	l, _ := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	id, err := l.Record(ctx, buy("A", "0.4", "1"))
	require.NoError(t, err)
	assert.Equal(t, domain.RecordID(1), id)

	bal, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("9.6")))
}

func TestRecord_AverageCostRealization(t *testing.T) {
	l, _ := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	_, err := l.Record(ctx, buy("A", "0.5", "1.0"))
	require.NoError(t, err)
	_, err = l.Record(ctx, buy("A", "0.3", "2.0"))
	require.NoError(t, err)

	_, err = l.Record(ctx, sell("A", "0.4", "2.75"))
	require.NoError(t, err)

	hist, err := l.History(ctx, HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	r := hist[0].Realized
	require.NotNil(t, r)
	assert.True(t, r.CostBasis.Equal(dec("1.375")))
	assert.InDelta(t, 2.0, r.PriceMultiple, 1e-12)
	assert.InDelta(t, 1.0, r.PctChange, 1e-12)
	assert.True(t, r.Gain.Equal(dec("0.4")), "got %s", r.Gain)

	// 10 - 0.8 + 0.4 + 0.4
	bal, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("10")), "got %s", bal)
}

func TestRecord_FirstLotRealization(t *testing.T) {
	l, _ := newLedger(t, "10", CostBasisFirstLot)
	ctx := context.Background()

	_, err := l.Record(ctx, buy("A", "0.5", "1.0"))
	require.NoError(t, err)
	_, err = l.Record(ctx, buy("A", "0.3", "2.0"))
	require.NoError(t, err)

	_, err = l.Record(ctx, sell("A", "0.5", "2.0"))
	require.NoError(t, err)
	_, err = l.Record(ctx, sell("A", "0.3", "2.0"))
	require.NoError(t, err)

	hist, err := l.History(ctx, HistoryFilter{Asset: "A"})
	require.NoError(t, err)
	require.Len(t, hist, 4)
	assert.True(t, hist[1].Realized.CostBasis.Equal(dec("1.0")), "first sell matches lot 1")
	assert.True(t, hist[0].Realized.CostBasis.Equal(dec("2.0")), "second sell matches lot 2")
	assert.True(t, hist[0].Realized.Gain.IsZero())
}

func TestRecord_CallerSuppliedRealizedIsKept(t *testing.T) {
	l, _ := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	_, err := l.Record(ctx, buy("A", "1", "1"))
	require.NoError(t, err)

	req := sell("A", "1", "3")
	req.Realized = &domain.RealizedGain{Gain: dec("1.5"), PctChange: 1.5, PriceMultiple: 2.5, CostBasis: dec("1.2")}
	_, err = l.Record(ctx, req)
	require.NoError(t, err)

	hist, err := l.History(ctx, HistoryFilter{Limit: 1})
	require.NoError(t, err)
	assert.True(t, hist[0].Realized.Gain.Equal(dec("1.5")))
}

func TestRecord_CallerSuppliedRealizedCannotOversell(t *testing.T) {
	l, _ := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	_, err := l.Record(ctx, buy("A", "1", "1"))
	require.NoError(t, err)

	req := sell("A", "5", "1")
	req.Realized = &domain.RealizedGain{Gain: decimal.Zero, PriceMultiple: 1, CostBasis: dec("1")}
	_, err = l.Record(ctx, req)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	req = sell("B", "1", "1")
	req.Realized = &domain.RealizedGain{Gain: decimal.Zero, PriceMultiple: 1, CostBasis: dec("1")}
	_, err = l.Record(ctx, req)
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "nothing held")

	bal, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("9")), "no proceeds credited, got %s", bal)

	hist, err := l.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestRecord_Rejections(t *testing.T) {
	l, _ := newLedger(t, "1", CostBasisAverage)
	ctx := context.Background()

	_, err := l.Record(ctx, buy("A", "2", "1"))
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	_, err = l.Record(ctx, sell("A", "1", "1"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "no open position")

	_, err = l.Record(ctx, buy("A", "0.5", "1"))
	require.NoError(t, err)
	_, err = l.Record(ctx, sell("A", "0.6", "1"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "oversell")

	_, err = l.Record(ctx, RecordRequest{Asset: "A", Side: "HOLD", Amount: dec("1"), Price: dec("1")})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = l.Record(ctx, buy("A", "0", "1"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	req := buy("A", "0.1", "1")
	req.Realized = &domain.RealizedGain{}
	_, err = l.Record(ctx, req)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	hist, err := l.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestRecord_TimestampsMonotonic(t *testing.T) {
	l, _ := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, buy("A", "0.1", "1"))
		require.NoError(t, err)
	}

	hist, err := l.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	for i := 1; i < len(hist); i++ {
		assert.Greater(t, hist[i-1].Timestamp, hist[i].Timestamp)
	}
}

func TestRecord_RetriesTransientFailures(t *testing.T) {
	l, store := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	store.FailNext(2, storage.ErrUnavailable)
	_, err := l.Record(ctx, buy("A", "1", "1"))
	require.NoError(t, err)

	hist, err := l.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestRecord_PersistentFailureBecomesPersistenceError(t *testing.T) {
	l, store := newLedger(t, "10", CostBasisAverage)
	ctx := context.Background()

	store.FailNext(1_000_000, storage.ErrUnavailable)
	_, err := l.Record(ctx, buy("A", "1", "1"))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	store.FailNext(0, nil)
	bal, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("10")), "failed record leaves balance untouched")
}

func TestReset(t *testing.T) {
	l, _ := newLedger(t, "3", CostBasisAverage)
	ctx := context.Background()

	_, err := l.Record(ctx, buy("A", "1", "1"))
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx))

	hist, err := l.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, hist)
	bal, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("3")))
}

func TestRecord_LogsStructuredFields(t *testing.T) {
	store := memory.NewLedgerStore()
	logger, hook := test.NewNullLogger()
	l := New(Options{Store: store, Logger: logger})
	ctx := context.Background()
	_, err := l.Open(ctx, dec("1"))
	require.NoError(t, err)

	_, err = l.Record(ctx, buy("MintA", "0.1", "1"))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "MintA", entry.Data["asset"])
	assert.Equal(t, "ledger", entry.Data["component"])
}

func TestParseCostBasis(t *testing.T) {
	m, err := ParseCostBasis("")
	require.NoError(t, err)
	assert.Equal(t, CostBasisAverage, m)

	m, err = ParseCostBasis("FIRST_LOT")
	require.NoError(t, err)
	assert.Equal(t, CostBasisFirstLot, m)

	_, err = ParseCostBasis("lifo")
	assert.Error(t, err)
}

// Randomized trading through the ledger never drives quantity or balance
// below zero, and the balance equals opening plus the sum of deltas.
func TestRecord_RandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	assets := []string{"A", "B"}

	for iter := 0; iter < 30; iter++ {
		l, _ := newLedger(t, "5", CostBasisAverage)
		ctx := context.Background()

		for i := 0; i < 40; i++ {
			asset := assets[rng.Intn(len(assets))]
			amount := decimal.New(int64(rng.Intn(900)+1), -3)
			price := decimal.New(int64(rng.Intn(400)+50), -2)
			if rng.Intn(2) == 0 {
				_, _ = l.Record(ctx, buy(asset, amount.String(), price.String()))
			} else {
				_, _ = l.Record(ctx, sell(asset, amount.String(), price.String()))
			}
		}

		snap, err := l.Snapshot(ctx)
		require.NoError(t, err)
		require.False(t, snap.Balance.IsNegative())

		sum := snap.Opening
		for _, r := range snap.Records {
			sum = sum.Add(r.BalanceDelta())
		}
		assert.True(t, sum.Equal(snap.Balance), "iter %d: %s != %s", iter, sum, snap.Balance)

		for _, p := range position.Derive(snap.Records) {
			assert.True(t, p.Quantity.Sign() > 0)
		}
	}
}

func TestRealize(t *testing.T) {
	r := Realize(dec("1"), dec("0.5"), dec("1"))
	assert.True(t, r.Gain.Equal(dec("-0.5")))
	assert.InDelta(t, -0.5, r.PctChange, 1e-12)

	zero := Realize(dec("1"), dec("2"), decimal.Zero)
	assert.True(t, zero.Gain.IsZero())
}
