package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"solana-trader/internal/domain"
	"solana-trader/internal/exit"
	"solana-trader/internal/ledger"
	"solana-trader/internal/metrics"
	"solana-trader/internal/observability"
	"solana-trader/internal/orchestrator"
	"solana-trader/internal/safety"
)

// Handler returns the HTTP mux for health, metrics, status and the
// read-only account views.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.HandlerFor(a.Registry))
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/positions", a.handlePositions)
	mux.HandleFunc("/trades", a.handleTrades)
	mux.HandleFunc("/performance", a.handlePerformance)
	mux.HandleFunc("POST /safety/pause", a.handlePause)
	mux.HandleFunc("POST /safety/resume", a.handleResume)
	return mux
}

// Serve runs the HTTP server on addr until ctx is done.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.log.WithField("addr", addr).Info("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status  string              `json:"status"`
	Uptime  string              `json:"uptime"`
	Started time.Time           `json:"started"`
	Mode    string              `json:"mode"`
	Balance string              `json:"balance"`
	Loop    orchestrator.Status `json:"loop"`
	Safety  safety.Status       `json:"safety"`
	Exits   exit.Stats          `json:"exits"`
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(a.started).Round(time.Second).String(),
		Started: a.started,
		Mode:    a.Config.Execution.Mode,
		Loop:    a.Orchestrator.Status(),
		Safety:  a.Guard.Status(),
		Exits:   a.Exits.Stats(),
	}
	if bal, err := a.Ledger.Balance(r.Context()); err != nil {
		resp.Status = "degraded"
	} else {
		resp.Balance = bal.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// PositionView is one entry of /positions.
type PositionView struct {
	Asset         string       `json:"asset"`
	Quantity      string       `json:"quantity"`
	AvgEntryPrice string       `json:"avg_entry_price"`
	OpenedAt      time.Time    `json:"opened_at"`
	Exit          exit.Summary `json:"exit"`
}

func (a *App) handlePositions(w http.ResponseWriter, r *http.Request) {
	open, err := a.Positions.OpenPositions(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	views := make([]PositionView, 0, len(open))
	for _, p := range open {
		summary, err := a.Exits.Summary(r.Context(), p.Asset)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		views = append(views, PositionView{
			Asset:         p.Asset,
			Quantity:      p.Quantity.String(),
			AvgEntryPrice: p.AvgEntryPrice.String(),
			OpenedAt:      time.UnixMilli(p.OpenedAt).UTC(),
			Exit:          summary,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// TradeView is one entry of /trades.
type TradeView struct {
	ID        domain.RecordID  `json:"id"`
	Asset     string           `json:"asset"`
	Side      domain.Side      `json:"side"`
	Amount    string           `json:"amount"`
	Price     string           `json:"price"`
	Timestamp time.Time        `json:"timestamp"`
	TxRef     string           `json:"tx_ref"`
	Gain      *decimal.Decimal `json:"gain,omitempty"`
}

// NewTradeView flattens a record for JSON output.
func NewTradeView(rec *domain.TradeRecord) TradeView {
	v := TradeView{
		ID:        rec.ID,
		Asset:     rec.Asset,
		Side:      rec.Side,
		Amount:    rec.Amount.String(),
		Price:     rec.Price.String(),
		Timestamp: time.UnixMilli(rec.Timestamp).UTC(),
		TxRef:     rec.TxRef,
	}
	if rec.Realized != nil {
		g := rec.Realized.Gain
		v.Gain = &g
	}
	return v
}

func (a *App) handleTrades(w http.ResponseWriter, r *http.Request) {
	filter := ledger.HistoryFilter{Asset: r.URL.Query().Get("asset"), Limit: 100}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	records, err := a.Ledger.History(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	views := make([]TradeView, 0, len(records))
	for _, rec := range records {
		views = append(views, NewTradeView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *App) handlePerformance(w http.ResponseWriter, r *http.Request) {
	records, err := a.Ledger.History(r.Context(), ledger.HistoryFilter{Asset: r.URL.Query().Get("asset")})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.Compute(records))
}

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "paused by operator"
	}
	a.Guard.Pause(reason)
	writeJSON(w, http.StatusOK, a.Guard.Status())
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	a.Guard.Resume()
	writeJSON(w, http.StatusOK, a.Guard.Status())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
