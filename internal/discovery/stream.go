package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
)

// ErrStale is returned when the stream has not delivered a recent snapshot.
var ErrStale = errors.New("discovery stream stale")

// StreamFeedOptions for creating a StreamFeed.
type StreamFeedOptions struct {
	URL string
	// MaxAge is how long a snapshot or price stays usable.
	MaxAge            time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Now               func() time.Time
	Logger            logrus.FieldLogger
}

// StreamFeed keeps the latest candidate snapshot and prices pushed over a
// WebSocket. Messages are JSON objects:
//
//	{"type": "candidates", "candidates": [...]}
//	{"type": "price", "asset": "...", "price": 1.23}
type StreamFeed struct {
	opts StreamFeedOptions
	log  logrus.FieldLogger

	mu         sync.RWMutex
	candidates []domain.Candidate
	snapshotAt time.Time
	prices     map[string]quote
	connected  bool
}

type quote struct {
	price float64
	at    time.Time
}

type streamMessage struct {
	Type       string             `json:"type"`
	Candidates []domain.Candidate `json:"candidates,omitempty"`
	Asset      string             `json:"asset,omitempty"`
	Price      float64            `json:"price,omitempty"`
}

// NewStreamFeed creates a StreamFeed. Call Run to start consuming.
func NewStreamFeed(opts StreamFeedOptions) *StreamFeed {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 2 * time.Minute
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StreamFeed{
		opts:   opts,
		log:    log.WithField("component", "discovery_stream"),
		prices: make(map[string]quote),
	}
}

// Run consumes the stream until ctx is done, reconnecting with backoff.
func (f *StreamFeed) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.ReconnectDelay
	b.MaxInterval = f.opts.MaxReconnectDelay
	b.MaxElapsedTime = 0

	for {
		err := f.consume(ctx, b)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		f.log.WithError(err).WithField("retry_in", wait).Warn("discovery stream disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// consume reads one connection until it fails.
func (f *StreamFeed) consume(ctx context.Context, b backoff.BackOff) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.setConnected(true)
	defer f.setConnected(false)
	b.Reset()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.WithError(err).Warn("malformed stream message")
			continue
		}
		f.apply(msg)
	}
}

func (f *StreamFeed) apply(msg streamMessage) {
	now := f.opts.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	switch msg.Type {
	case "candidates":
		valid := make([]domain.Candidate, 0, len(msg.Candidates))
		for _, c := range msg.Candidates {
			if validCandidate(c) != nil {
				continue
			}
			valid = append(valid, c)
			f.prices[c.Asset] = quote{price: c.Price, at: now}
		}
		f.candidates = valid
		f.snapshotAt = now
	case "price":
		if msg.Asset != "" && validPrice(msg.Price) {
			f.prices[msg.Asset] = quote{price: msg.Price, at: now}
		}
	default:
		f.log.WithField("type", msg.Type).Debug("ignoring stream message")
	}
}

func (f *StreamFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// Connected reports whether the stream is currently attached.
func (f *StreamFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// TopCandidates returns the most recent snapshot.
func (f *StreamFeed) TopCandidates(_ context.Context) ([]domain.Candidate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.snapshotAt.IsZero() || f.opts.Now().Sub(f.snapshotAt) > f.opts.MaxAge {
		return nil, ErrStale
	}
	return append([]domain.Candidate(nil), f.candidates...), nil
}

// Price returns the latest quote for asset.
func (f *StreamFeed) Price(_ context.Context, asset string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.prices[asset]
	if !ok || f.opts.Now().Sub(q.at) > f.opts.MaxAge {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	return q.price, nil
}

var _ Source = (*StreamFeed)(nil)
