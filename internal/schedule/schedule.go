// Package schedule runs the calendar jobs: the daily safety reset and the
// periodic account summary.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/domain"
	"solana-trader/internal/events"
	"solana-trader/internal/exit"
	"solana-trader/internal/ledger"
	"solana-trader/internal/safety"
)

// Guard is the part of *safety.Guard the jobs use.
type Guard interface {
	ResetDaily()
	Status() safety.Status
}

// Ledger is the read side of *ledger.Ledger.
type Ledger interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	History(ctx context.Context, filter ledger.HistoryFilter) ([]*domain.TradeRecord, error)
}

// Positions lists open positions.
type Positions interface {
	OpenPositions(ctx context.Context) ([]domain.Position, error)
}

// ExitStats reports exit counters. *exit.Engine implements it.
type ExitStats interface {
	Stats() exit.Stats
}

// Options for creating a Scheduler. Cron specs have six fields, seconds first.
type Options struct {
	DailyResetCron string
	SummaryCron    string
	Location       *time.Location

	Guard     Guard
	Ledger    Ledger
	Positions Positions
	Exits     ExitStats        // optional
	Events    events.Publisher // optional

	// JobTimeout bounds one summary run.
	JobTimeout time.Duration
	Now        func() time.Time
	Logger     logrus.FieldLogger
}

// Report is the periodic account summary.
type Report struct {
	At            time.Time       `json:"at"`
	Balance       decimal.Decimal `json:"balance"`
	OpenPositions int             `json:"open_positions"`
	Assets        []string        `json:"assets,omitempty"`
	TradesToday   int             `json:"trades_today"`
	RealizedToday decimal.Decimal `json:"realized_today"`
	Exits         exit.Stats      `json:"exits"`
	Safety        *safety.Status  `json:"safety,omitempty"`
}

// Scheduler wraps a seconds-enabled cron.
type Scheduler struct {
	cron *cron.Cron
	opts Options
	loc  *time.Location
	log  logrus.FieldLogger
}

// New registers the jobs. An invalid spec is returned as an error; an
// empty spec disables that job.
func New(opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "schedule")

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(opts.Location),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		opts: opts,
		loc:  opts.Location,
		log:  log,
	}

	if opts.DailyResetCron != "" && opts.Guard != nil {
		if _, err := s.cron.AddFunc(opts.DailyResetCron, s.dailyReset); err != nil {
			return nil, fmt.Errorf("register daily reset: %w", err)
		}
	}
	if opts.SummaryCron != "" && opts.Ledger != nil && opts.Positions != nil {
		if _, err := s.cron.AddFunc(opts.SummaryCron, s.summaryTask); err != nil {
			return nil, fmt.Errorf("register summary: %w", err)
		}
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("scheduler started")
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) dailyReset() {
	s.opts.Guard.ResetDaily()
	s.log.Info("daily safety counters reset")
}

func (s *Scheduler) summaryTask() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
	defer cancel()

	if _, err := s.RunSummary(ctx); err != nil {
		s.log.WithError(err).Error("summary failed")
	}
}

// RunSummary builds the report, logs it and publishes it.
func (s *Scheduler) RunSummary(ctx context.Context) (Report, error) {
	r, err := s.Summary(ctx)
	if err != nil {
		return Report{}, err
	}

	s.log.WithFields(logrus.Fields{
		"balance":        r.Balance.String(),
		"open_positions": r.OpenPositions,
		"trades_today":   r.TradesToday,
		"realized_today": r.RealizedToday.String(),
		"exits":          r.Exits.Total(),
		"paused":         r.Safety != nil && r.Safety.Paused,
	}).Info("account summary")

	if err := s.opts.Events.Publish(ctx, events.Event{Kind: events.KindSummary, At: r.At, Payload: r}); err != nil {
		s.log.WithError(err).Warn("publish summary")
	}
	return r, nil
}

// Summary computes the report for the current day in the scheduler's
// location.
func (s *Scheduler) Summary(ctx context.Context) (Report, error) {
	now := s.opts.Now().In(s.loc)
	r := Report{At: now, RealizedToday: decimal.Zero}

	bal, err := s.opts.Ledger.Balance(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("balance: %w", err)
	}
	r.Balance = bal

	open, err := s.opts.Positions.OpenPositions(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("open positions: %w", err)
	}
	r.OpenPositions = len(open)
	for _, p := range open {
		r.Assets = append(r.Assets, p.Asset)
	}

	records, err := s.opts.Ledger.History(ctx, ledger.HistoryFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("history: %w", err)
	}
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, s.loc).UnixMilli()
	for _, rec := range records {
		// newest first
		if rec.Timestamp < dayStart {
			break
		}
		r.TradesToday++
		if rec.Realized != nil {
			r.RealizedToday = r.RealizedToday.Add(rec.Realized.Gain)
		}
	}

	if s.opts.Exits != nil {
		r.Exits = s.opts.Exits.Stats()
	}
	if s.opts.Guard != nil {
		st := s.opts.Guard.Status()
		r.Safety = &st
	}
	return r, nil
}
