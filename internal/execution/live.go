package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/solana"
)

// Caller performs JSON-RPC calls. *solana.HTTPClient implements it.
type Caller interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// LiveOptions for creating a Live client.
type LiveOptions struct {
	// Gateway is the swap service that builds, signs and submits transactions.
	Gateway Caller
	// RPC reads balances and signature statuses from the cluster.
	RPC solana.RPCClient
	// WS is optional; when set, confirmations arrive by subscription and
	// polling is the fallback.
	WS solana.WSClient

	Wallet       string
	SlippageBps  int
	Commitment   solana.Commitment
	PollInterval time.Duration
	Logger       logrus.FieldLogger
}

// Live submits orders through a swap gateway and waits for on-chain
// confirmation before reporting a fill.
type Live struct {
	gateway    Caller
	rpc        solana.RPCClient
	ws         solana.WSClient
	wallet     string
	slippage   int
	commitment solana.Commitment
	poll       time.Duration
	log        logrus.FieldLogger
}

// NewLive validates the wallet address and creates a Live client.
func NewLive(opts LiveOptions) (*Live, error) {
	if opts.Gateway == nil || opts.RPC == nil {
		return nil, errors.New("live execution requires a gateway and an RPC client")
	}
	if err := solana.ValidateWallet(opts.Wallet); err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	l := &Live{
		gateway:    opts.Gateway,
		rpc:        opts.RPC,
		ws:         opts.WS,
		wallet:     opts.Wallet,
		slippage:   opts.SlippageBps,
		commitment: opts.Commitment,
		poll:       opts.PollInterval,
		log:        opts.Logger,
	}
	if l.commitment == "" {
		l.commitment = solana.CommitmentConfirmed
	}
	if l.poll <= 0 {
		l.poll = 500 * time.Millisecond
	}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	l.log = l.log.WithField("component", "execution_live")
	return l, nil
}

type swapRequest struct {
	Side        string `json:"side"`
	Mint        string `json:"mint"`
	Amount      string `json:"amount"`
	SlippageBps int    `json:"slippage_bps"`
	Wallet      string `json:"wallet"`
}

type swapResult struct {
	Signature string `json:"signature"`
}

// Buy swaps amount SOL into asset.
func (l *Live) Buy(ctx context.Context, asset string, amount decimal.Decimal) (string, error) {
	return l.swap(ctx, "buy", asset, amount)
}

// Sell swaps quantity of asset back to SOL.
func (l *Live) Sell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error) {
	return l.swap(ctx, "sell", asset, quantity)
}

// Balance returns the wallet SOL balance.
func (l *Live) Balance(ctx context.Context) (decimal.Decimal, error) {
	lamports, err := l.rpc.GetBalance(ctx, l.wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return solana.LamportsToSOL(lamports), nil
}

func (l *Live) swap(ctx context.Context, side, asset string, amount decimal.Decimal) (string, error) {
	if err := validateOrder(asset, amount); err != nil {
		return "", err
	}
	if err := solana.ValidatePubkey(asset); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	var res swapResult
	req := swapRequest{
		Side:        side,
		Mint:        asset,
		Amount:      amount.String(),
		SlippageBps: l.slippage,
		Wallet:      l.wallet,
	}
	if err := l.gateway.Call(ctx, "swap", []interface{}{req}, &res); err != nil {
		return "", fmt.Errorf("submit %s: %w", side, err)
	}
	if err := solana.ValidateSignature(res.Signature); err != nil {
		return "", fmt.Errorf("submit %s: gateway returned %w", side, err)
	}

	entry := l.log.WithFields(logrus.Fields{"side": side, "asset": asset, "tx_ref": res.Signature})
	entry.Debug("swap submitted, awaiting confirmation")

	if err := l.confirm(ctx, res.Signature); err != nil {
		entry.WithError(err).Warn("swap not confirmed")
		if errors.Is(err, ErrConfirmationTimeout) {
			// The transaction may still land.
			return res.Signature, &UnconfirmedError{TxRef: res.Signature, Err: err}
		}
		return "", err
	}
	return res.Signature, nil
}

// OrderStatus looks up a signature once. A signature the cluster has no
// record of is still pending.
func (l *Live) OrderStatus(ctx context.Context, txRef string) (OrderStatus, error) {
	statuses, err := l.rpc.GetSignatureStatuses(ctx, []string{txRef})
	if err != nil {
		return OrderPending, fmt.Errorf("signature status: %w", err)
	}
	if len(statuses) != 1 {
		return OrderPending, fmt.Errorf("signature status: expected 1 result, got %d", len(statuses))
	}
	switch st := statuses[0]; {
	case st.Failed():
		return OrderFailed, nil
	case st.Reached(l.commitment):
		return OrderConfirmed, nil
	default:
		return OrderPending, nil
	}
}

// confirm blocks until signature reaches the target commitment, fails on
// chain, or ctx expires.
func (l *Live) confirm(ctx context.Context, signature string) error {
	if l.ws != nil {
		ch, err := l.ws.SubscribeSignature(ctx, signature, l.commitment)
		if err == nil {
			select {
			case res, ok := <-ch:
				if ok {
					if res.Err != nil {
						return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, res.Err)
					}
					return nil
				}
				// Subscription dropped; fall through to polling.
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %v", ErrConfirmationTimeout, signature, ctx.Err())
			}
		} else {
			l.log.WithError(err).Debug("signature subscription unavailable, polling")
		}
	}
	return l.pollStatus(ctx, signature)
}

func (l *Live) pollStatus(ctx context.Context, signature string) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		statuses, err := l.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) == 1 {
			st := statuses[0]
			switch {
			case st.Failed():
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, st.Err)
			case st.Reached(l.commitment):
				return nil
			}
		} else if err != nil && ctx.Err() == nil {
			l.log.WithError(err).Debug("signature status lookup failed")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrConfirmationTimeout, signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

var (
	_ Client        = (*Live)(nil)
	_ StatusChecker = (*Live)(nil)
)
