// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	// Tick metrics
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	LastSuccessfulTick prometheus.Gauge

	// Trading metrics
	OrdersTotal    *prometheus.CounterVec
	ExitsTotal     *prometheus.CounterVec
	EntriesSkipped *prometheus.CounterVec
	AlphaScore     prometheus.Histogram
	RealizedPnL    prometheus.Counter

	// Account metrics
	LedgerBalance    prometheus.Gauge
	ExecutionBalance prometheus.Gauge
	BalanceDrift     prometheus.Gauge
	OpenPositions    prometheus.Gauge

	// Collaborator metrics
	CollaboratorLatency *prometheus.HistogramVec
	CollaboratorErrors  *prometheus.CounterVec

	// Persistence metrics
	LedgerWriteErrors prometheus.Counter
}

// NewMetrics creates Metrics registered with reg. A nil reg uses the
// default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_trader"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "ticks_total",
			Help:      "Total number of ticks by status",
		}, []string{"status"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "tick_duration_seconds",
			Help:      "Tick duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccessfulTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last successful tick",
		}),

		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "orders_total",
			Help:      "Total number of orders by side and status",
		}, []string{"side", "status"}),
		ExitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "exits_total",
			Help:      "Total number of confirmed exits by reason",
		}, []string{"reason"}),
		EntriesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "entries_skipped_total",
			Help:      "Total number of candidates not entered by reason",
		}, []string{"reason"}),
		AlphaScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "alpha_score",
			Help:      "Combined alpha score of scored candidates",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		RealizedPnL: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "realized_gain_sol_total",
			Help:      "Sum of positive realized gains in SOL",
		}),

		LedgerBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "ledger_balance_sol",
			Help:      "Ledger account balance in SOL",
		}),
		ExecutionBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "execution_balance_sol",
			Help:      "Balance reported by the execution client in SOL",
		}),
		BalanceDrift: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "balance_drift_sol",
			Help:      "Execution balance minus ledger balance in SOL",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "open_positions",
			Help:      "Number of open positions",
		}),

		CollaboratorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "call_latency_seconds",
			Help:      "External call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator", "op"}),
		CollaboratorErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "errors_total",
			Help:      "Total number of failed external calls",
		}, []string{"collaborator", "op"}),

		LedgerWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_errors_total",
			Help:      "Total number of ledger writes that failed after retries",
		}),
	}
}

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick records one tick outcome.
func (m *Metrics) RecordTick(d time.Duration, err error) {
	m.TickDuration.Observe(d.Seconds())
	if err != nil {
		m.TicksTotal.WithLabelValues("error").Inc()
		return
	}
	m.TicksTotal.WithLabelValues("ok").Inc()
	m.LastSuccessfulTick.Set(float64(time.Now().Unix()))
}

// RecordOrder counts an order attempt.
func (m *Metrics) RecordOrder(side string, err error) {
	status := "filled"
	if err != nil {
		status = "failed"
	}
	m.OrdersTotal.WithLabelValues(side, status).Inc()
}

// RecordCall records one external call.
func (m *Metrics) RecordCall(collaborator, op string, d time.Duration, err error) {
	m.CollaboratorLatency.WithLabelValues(collaborator, op).Observe(d.Seconds())
	if err != nil {
		m.CollaboratorErrors.WithLabelValues(collaborator, op).Inc()
	}
}

// UpdateBalances sets the account gauges. execution is nil when the
// execution client balance could not be read.
func (m *Metrics) UpdateBalances(ledger float64, execution *float64) {
	m.LedgerBalance.Set(ledger)
	if execution != nil {
		m.ExecutionBalance.Set(*execution)
		m.BalanceDrift.Set(*execution - ledger)
	}
}
