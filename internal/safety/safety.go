// Package safety blocks new entries when daily limits are hit or trading is
// paused. Exits are never blocked.
package safety

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
)

// ErrBlocked wraps every refusal from CanEnter.
var ErrBlocked = errors.New("entry blocked")

// Config holds safety limits.
type Config struct {
	MaxDailyLossPct   float64 `yaml:"max_daily_loss_pct"`
	PauseOnDailyLoss  bool    `yaml:"pause_on_daily_loss"`
	MinTradingBalance float64 `yaml:"min_trading_balance"`
	MaxDailyTrades    int     `yaml:"max_daily_trades"`
	MaxOpenPositions  int     `yaml:"max_open_positions"`
}

// DefaultConfig returns a 5% daily loss limit, 100 trades a day, five open
// positions and a 0.5 SOL floor.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossPct:   0.05,
		PauseOnDailyLoss:  true,
		MinTradingBalance: 0.5,
		MaxDailyTrades:    100,
		MaxOpenPositions:  5,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	switch {
	case c.MaxDailyLossPct <= 0 || c.MaxDailyLossPct > 1:
		return &domain.ConfigError{Field: "safety.max_daily_loss_pct", Reason: "must be in (0, 1]"}
	case c.MinTradingBalance < 0:
		return &domain.ConfigError{Field: "safety.min_trading_balance", Reason: "must be >= 0"}
	case c.MaxDailyTrades <= 0:
		return &domain.ConfigError{Field: "safety.max_daily_trades", Reason: "must be > 0"}
	case c.MaxOpenPositions <= 0:
		return &domain.ConfigError{Field: "safety.max_open_positions", Reason: "must be > 0"}
	}
	return nil
}

// Status is a point-in-time view of the guard.
type Status struct {
	Paused      bool            `json:"paused"`
	PauseReason string          `json:"pause_reason,omitempty"`
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
	DailyTrades int             `json:"daily_trades"`
	Day         string          `json:"day"`
}

// Guard tracks daily counters in UTC days.
type Guard struct {
	cfg Config
	now func() time.Time
	log logrus.FieldLogger

	mu          sync.Mutex
	day         string
	dailyPnL    decimal.Decimal
	dailyTrades int
	paused      bool
	reason      string
}

// New creates a Guard. now defaults to time.Now.
func New(cfg Config, now func() time.Time, log logrus.FieldLogger) *Guard {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	g := &Guard{cfg: cfg, now: now, log: log.WithField("component", "safety")}
	g.day = g.today()
	return g
}

func (g *Guard) today() string {
	return g.now().UTC().Format(time.DateOnly)
}

// rollLocked resets the counters when the UTC day has changed. A pause set
// by the daily loss limit lifts with the new day; a manual pause does not.
func (g *Guard) rollLocked() {
	day := g.today()
	if day == g.day {
		return
	}
	g.day = day
	g.dailyPnL = decimal.Zero
	g.dailyTrades = 0
	if g.paused && g.reason == lossPauseReason {
		g.paused = false
		g.reason = ""
	}
}

const lossPauseReason = "daily loss limit reached"

// CanEnter reports whether a new position may be opened. The returned error
// wraps ErrBlocked and names the rule.
func (g *Guard) CanEnter(balance decimal.Decimal, openPositions int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()

	if g.paused {
		return fmt.Errorf("%w: paused: %s", ErrBlocked, g.reason)
	}

	limit := balance.Mul(decimal.NewFromFloat(g.cfg.MaxDailyLossPct))
	if g.dailyPnL.Sign() < 0 && g.dailyPnL.Neg().GreaterThanOrEqual(limit) {
		if g.cfg.PauseOnDailyLoss {
			g.paused = true
			g.reason = lossPauseReason
			g.log.WithFields(logrus.Fields{
				"daily_pnl": g.dailyPnL.String(),
				"limit":     limit.String(),
			}).Warn("pausing entries")
		}
		return fmt.Errorf("%w: daily loss %s reached limit %s", ErrBlocked, g.dailyPnL.Neg(), limit)
	}

	if minBal := decimal.NewFromFloat(g.cfg.MinTradingBalance); balance.LessThan(minBal) {
		return fmt.Errorf("%w: balance %s below minimum %s", ErrBlocked, balance, minBal)
	}
	if g.dailyTrades >= g.cfg.MaxDailyTrades {
		return fmt.Errorf("%w: %d trades today", ErrBlocked, g.dailyTrades)
	}
	if openPositions >= g.cfg.MaxOpenPositions {
		return fmt.Errorf("%w: %d open positions", ErrBlocked, openPositions)
	}
	return nil
}

// RecordTrade counts one fill. pnl is the realized gain, zero for BUYs.
func (g *Guard) RecordTrade(pnl decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	g.dailyPnL = g.dailyPnL.Add(pnl)
	g.dailyTrades++
}

// Restore rebuilds today's counters from ledger records.
func (g *Guard) Restore(records []*domain.TradeRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()

	g.dailyPnL = decimal.Zero
	g.dailyTrades = 0
	for _, r := range records {
		if time.UnixMilli(r.Timestamp).UTC().Format(time.DateOnly) != g.day {
			continue
		}
		g.dailyTrades++
		if r.Realized != nil {
			g.dailyPnL = g.dailyPnL.Add(r.Realized.Gain)
		}
	}
}

// Pause blocks entries until Resume.
func (g *Guard) Pause(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = true
	g.reason = reason
	g.log.WithField("reason", reason).Warn("entries paused")
}

// EmergencyStop pauses with an emergency reason.
func (g *Guard) EmergencyStop(reason string) {
	g.Pause("EMERGENCY STOP: " + reason)
}

// Resume lifts any pause.
func (g *Guard) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = false
	g.reason = ""
	g.log.Info("entries resumed")
}

// ResetDaily clears the daily counters regardless of the clock.
func (g *Guard) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.day = g.today()
	g.dailyPnL = decimal.Zero
	g.dailyTrades = 0
	if g.paused && g.reason == lossPauseReason {
		g.paused = false
		g.reason = ""
	}
}

// Status returns the current state.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	return Status{
		Paused:      g.paused,
		PauseReason: g.reason,
		DailyPnL:    g.dailyPnL,
		DailyTrades: g.dailyTrades,
		Day:         g.day,
	}
}
