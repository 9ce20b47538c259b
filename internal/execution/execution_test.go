package execution

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trader/internal/solana"
)

const mint = "So11111111111111111111111111111111111111112"

var txSig = base58.Encode(bytes.Repeat([]byte{7}, solana.SignatureSize))

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func wallet() string {
	pub := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{1}, ed25519.SeedSize)).Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}

type fixedBalance decimal.Decimal

func (f fixedBalance) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

func TestSimulated_BuySell(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sim := NewSimulated(SimulatedOptions{Account: fixedBalance(dec("1")), Logger: logger})
	ctx := context.Background()

	ref, err := sim.Buy(ctx, "A", dec("0.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "sim-"))

	ref2, err := sim.Sell(ctx, "A", dec("0.4"))
	require.NoError(t, err)
	assert.NotEqual(t, ref, ref2)
	assert.Equal(t, 2, sim.Orders())

	bal, err := sim.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("1")))
}

func TestSimulated_Rejects(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sim := NewSimulated(SimulatedOptions{Account: fixedBalance(dec("1")), Logger: logger})
	ctx := context.Background()

	_, err := sim.Buy(ctx, "A", dec("1.5"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = sim.Buy(ctx, "", dec("0.1"))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = sim.Sell(ctx, "A", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Zero(t, sim.Orders())
}

func TestSimulated_FailNextAndLatency(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sim := NewSimulated(SimulatedOptions{Account: fixedBalance(dec("1")), Latency: 50 * time.Millisecond, Logger: logger})

	boom := errors.New("boom")
	sim.FailNext(1, boom)
	_, err := sim.Sell(context.Background(), "A", dec("0.1"))
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = sim.Sell(ctx, "A", dec("0.1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// chain fakes both the swap gateway and the cluster RPC.
type chain struct {
	mu       sync.Mutex
	swaps    []swapRequest
	statuses []map[string]interface{} // returned in order, last one repeats
	polls    atomic.Int32
}

func (c *chain) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result interface{}
		switch req.Method {
		case "swap":
			var sr swapRequest
			require.NoError(t, json.Unmarshal(req.Params[0], &sr))
			c.mu.Lock()
			c.swaps = append(c.swaps, sr)
			c.mu.Unlock()
			result = map[string]string{"signature": txSig}
		case "getSignatureStatuses":
			n := int(c.polls.Add(1)) - 1
			c.mu.Lock()
			if n >= len(c.statuses) {
				n = len(c.statuses) - 1
			}
			st := c.statuses[n]
			c.mu.Unlock()
			result = map[string]interface{}{"value": []interface{}{st}}
		case "getBalance":
			result = map[string]interface{}{"value": uint64(1_250_000_000)}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLive(t *testing.T, c *chain, ws solana.WSClient) *Live {
	t.Helper()
	srv := c.server(t)
	rpc := solana.NewHTTPClient(srv.URL, solana.WithRetryDelay(time.Millisecond))
	logger, _ := test.NewNullLogger()
	l, err := NewLive(LiveOptions{
		Gateway:      rpc,
		RPC:          rpc,
		WS:           ws,
		Wallet:       wallet(),
		SlippageBps:  100,
		PollInterval: time.Millisecond,
		Logger:       logger,
	})
	require.NoError(t, err)
	return l
}

func TestLive_BuyPollsUntilConfirmed(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{
		nil,
		{"slot": 1, "err": nil, "confirmationStatus": "processed"},
		{"slot": 1, "err": nil, "confirmationStatus": "confirmed"},
	}}
	l := newLive(t, c, nil)

	ref, err := l.Buy(context.Background(), mint, dec("0.4"))
	require.NoError(t, err)
	assert.Equal(t, txSig, ref)
	assert.Equal(t, int32(3), c.polls.Load())

	require.Len(t, c.swaps, 1)
	assert.Equal(t, swapRequest{Side: "buy", Mint: mint, Amount: "0.4", SlippageBps: 100, Wallet: wallet()}, c.swaps[0])
}

func TestLive_SellFailsOnChain(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{
		{"slot": 1, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}, "confirmationStatus": "confirmed"},
	}}
	l := newLive(t, c, nil)

	_, err := l.Sell(context.Background(), mint, dec("0.1"))
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestLive_ConfirmationTimeout(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{nil}}
	l := newLive(t, c, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	ref, err := l.Buy(ctx, mint, dec("0.1"))
	assert.ErrorIs(t, err, ErrConfirmationTimeout)

	// The signature survives the timeout so the order can be resolved later.
	assert.Equal(t, txSig, ref)
	ue, ok := AsUnconfirmed(err)
	require.True(t, ok)
	assert.Equal(t, txSig, ue.TxRef)
}

func TestLive_FailedOnChainIsNotUnconfirmed(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{
		{"slot": 1, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}, "confirmationStatus": "confirmed"},
	}}
	l := newLive(t, c, nil)

	ref, err := l.Buy(context.Background(), mint, dec("0.1"))
	require.Error(t, err)
	assert.Empty(t, ref)
	_, ok := AsUnconfirmed(err)
	assert.False(t, ok)
}

func TestLive_OrderStatus(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{
		nil,
		{"slot": 1, "err": nil, "confirmationStatus": "processed"},
		{"slot": 1, "err": nil, "confirmationStatus": "confirmed"},
	}}
	l := newLive(t, c, nil)
	ctx := context.Background()

	for _, want := range []OrderStatus{OrderPending, OrderPending, OrderConfirmed} {
		got, err := l.OrderStatus(ctx, txSig)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	failed := &chain{statuses: []map[string]interface{}{
		{"slot": 1, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}, "confirmationStatus": "finalized"},
	}}
	got, err := newLive(t, failed, nil).OrderStatus(ctx, txSig)
	require.NoError(t, err)
	assert.Equal(t, OrderFailed, got)
	assert.Equal(t, "failed", got.String())
}

type fakeWS struct {
	result *solana.SignatureResult // nil closes the channel without a value
}

func (f *fakeWS) SubscribeSignature(_ context.Context, sig string, _ solana.Commitment) (<-chan solana.SignatureResult, error) {
	ch := make(chan solana.SignatureResult, 1)
	if f.result != nil {
		ch <- *f.result
	}
	close(ch)
	return ch, nil
}

func (f *fakeWS) Close() error { return nil }

func TestLive_ConfirmsBySubscription(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{nil}}
	l := newLive(t, c, &fakeWS{result: &solana.SignatureResult{Signature: txSig, Slot: 9}})

	ref, err := l.Buy(context.Background(), mint, dec("0.2"))
	require.NoError(t, err)
	assert.Equal(t, txSig, ref)
	assert.Zero(t, c.polls.Load())
}

func TestLive_DroppedSubscriptionFallsBackToPolling(t *testing.T) {
	c := &chain{statuses: []map[string]interface{}{
		{"slot": 1, "err": nil, "confirmationStatus": "finalized"},
	}}
	l := newLive(t, c, &fakeWS{})

	_, err := l.Buy(context.Background(), mint, dec("0.2"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.polls.Load())
}

func TestLive_Balance(t *testing.T) {
	l := newLive(t, &chain{}, nil)

	bal, err := l.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("1.25")))
}

func TestLive_RejectsBadInput(t *testing.T) {
	l := newLive(t, &chain{}, nil)

	_, err := l.Buy(context.Background(), "not-a-mint", dec("0.1"))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewLive(LiveOptions{Gateway: l.gateway, RPC: l.rpc, Wallet: "bad"})
	assert.ErrorIs(t, err, solana.ErrInvalidPubkey)
}
