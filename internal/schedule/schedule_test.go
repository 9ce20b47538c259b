package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trader/internal/domain"
	"solana-trader/internal/events"
	"solana-trader/internal/ledger"
	"solana-trader/internal/position"
	"solana-trader/internal/safety"
	"solana-trader/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func fixture(t *testing.T) (*ledger.Ledger, *clock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := &clock{t: time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)}
	l := ledger.New(ledger.Options{Store: memory.NewLedgerStore(), Now: clk.now, Logger: logger})

	ctx := context.Background()
	_, err := l.Open(ctx, dec("10"))
	require.NoError(t, err)

	_, err = l.Record(ctx, ledger.RecordRequest{Asset: "MintA", Side: domain.SideBuy, Amount: dec("1"), Price: dec("1")})
	require.NoError(t, err)

	clk.t = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	_, err = l.Record(ctx, ledger.RecordRequest{Asset: "MintA", Side: domain.SideSell, Amount: dec("0.5"), Price: dec("2")})
	require.NoError(t, err)
	return l, clk
}

func TestSummary(t *testing.T) {
	l, clk := fixture(t)
	logger, _ := test.NewNullLogger()
	guard := safety.New(safety.DefaultConfig(), clk.now, logger)
	guard.RecordTrade(dec("0.5"))
	rec := &events.Recorder{}

	s, err := New(Options{
		Guard:     guard,
		Ledger:    l,
		Positions: position.NewAccessor(l),
		Events:    rec,
		Now:       clk.now,
		Logger:    logger,
	})
	require.NoError(t, err)

	r, err := s.RunSummary(context.Background())
	require.NoError(t, err)

	assert.True(t, r.Balance.Equal(dec("10")), "balance %s", r.Balance)
	assert.Equal(t, 1, r.OpenPositions)
	assert.Equal(t, []string{"MintA"}, r.Assets)
	assert.Equal(t, 1, r.TradesToday, "yesterday's buy is excluded")
	assert.True(t, r.RealizedToday.Equal(dec("0.5")), "realized %s", r.RealizedToday)
	require.NotNil(t, r.Safety)
	assert.Equal(t, 1, r.Safety.DailyTrades)

	published := rec.OfKind(events.KindSummary)
	require.Len(t, published, 1)
	assert.Equal(t, r, published[0].Payload)
}

func TestSummary_DayFollowsLocation(t *testing.T) {
	l, clk := fixture(t)
	// 10:00 UTC is 06:00 in New York; yesterday 23:00 UTC is 19:00 on the 14th there.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s, err := New(Options{Location: ny, Ledger: l, Positions: position.NewAccessor(l), Now: clk.now})
	require.NoError(t, err)

	r, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.TradesToday)

	clk.t = time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC) // 23:00 on the 14th in New York
	r, err = s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, r.TradesToday)
}

func TestNew_RegistersJobs(t *testing.T) {
	l, clk := fixture(t)
	guard := safety.New(safety.DefaultConfig(), clk.now, nil)

	s, err := New(Options{
		DailyResetCron: "0 0 0 * * *",
		SummaryCron:    "0 0 * * * *",
		Guard:          guard,
		Ledger:         l,
		Positions:      position.NewAccessor(l),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())

	s, err = New(Options{DailyResetCron: "0 0 0 * * *"})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Jobs(), "jobs without collaborators are not registered")
}

func TestNew_BadSpec(t *testing.T) {
	guard := safety.New(safety.DefaultConfig(), nil, nil)
	_, err := New(Options{DailyResetCron: "every midnight", Guard: guard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register daily reset")
}

func TestDailyResetFires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the cron clock")
	}
	logger, _ := test.NewNullLogger()
	guard := safety.New(safety.DefaultConfig(), nil, logger)
	guard.RecordTrade(dec("-0.1"))
	require.Equal(t, 1, guard.Status().DailyTrades)

	s, err := New(Options{DailyResetCron: "* * * * * *", Guard: guard, Logger: logger})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return guard.Status().DailyTrades == 0
	}, 3*time.Second, 50*time.Millisecond)
}
