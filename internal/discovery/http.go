package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
)

// HTTPFeedOptions for creating an HTTPFeed.
type HTTPFeedOptions struct {
	BaseURL string
	Limit   int
	Timeout time.Duration
	Client  *http.Client
	Logger  logrus.FieldLogger
}

// HTTPFeed reads candidates and prices from a discovery service:
//
//	GET {base}/candidates?limit=N -> {"candidates": [...]}
//	GET {base}/price/{asset}      -> {"asset": "...", "price": 1.23}
type HTTPFeed struct {
	base   string
	limit  int
	client *http.Client
	log    logrus.FieldLogger
}

// NewHTTPFeed creates an HTTPFeed.
func NewHTTPFeed(opts HTTPFeedOptions) *HTTPFeed {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPFeed{
		base:   opts.BaseURL,
		limit:  opts.Limit,
		client: client,
		log:    log.WithField("component", "discovery_http"),
	}
}

var errNotFound = errors.New("not found")

type candidatesResponse struct {
	Candidates []domain.Candidate `json:"candidates"`
}

type priceResponse struct {
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
}

// TopCandidates fetches the candidate list. Entries without an asset or a
// positive price are dropped.
func (f *HTTPFeed) TopCandidates(ctx context.Context) ([]domain.Candidate, error) {
	u := f.base + "/candidates"
	if f.limit > 0 {
		u += "?limit=" + strconv.Itoa(f.limit)
	}

	var resp candidatesResponse
	if err := f.get(ctx, u, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		if err := validCandidate(c); err != nil {
			f.log.WithError(err).Debug("dropping candidate")
			continue
		}
		out = append(out, c)
		if f.limit > 0 && len(out) == f.limit {
			break
		}
	}
	return out, nil
}

// Price fetches the current price of asset.
func (f *HTTPFeed) Price(ctx context.Context, asset string) (float64, error) {
	var resp priceResponse
	err := f.get(ctx, f.base+"/price/"+url.PathEscape(asset), &resp)
	if errors.Is(err, errNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	if err != nil {
		return 0, err
	}
	if !validPrice(resp.Price) {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	return resp.Price, nil
}

func (f *HTTPFeed) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Source = (*HTTPFeed)(nil)
