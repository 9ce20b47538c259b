// Package app wires the trader's components from configuration and serves
// its HTTP endpoints.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/alpha"
	"solana-trader/internal/config"
	"solana-trader/internal/discovery"
	"solana-trader/internal/events"
	"solana-trader/internal/execution"
	"solana-trader/internal/exit"
	"solana-trader/internal/ledger"
	"solana-trader/internal/model"
	"solana-trader/internal/observability"
	"solana-trader/internal/orchestrator"
	"solana-trader/internal/position"
	"solana-trader/internal/safety"
	"solana-trader/internal/schedule"
	"solana-trader/internal/solana"
)

// App holds every running component.
type App struct {
	Config       *config.Config
	Stores       *Stores
	Ledger       *ledger.Ledger
	Positions    *position.Accessor
	Exits        *exit.Engine
	Guard        *safety.Guard
	Source       discovery.Source
	Execution    execution.Client
	Events       events.Publisher
	Registry     *prometheus.Registry
	Metrics      *observability.Metrics
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *schedule.Scheduler

	log     logrus.FieldLogger
	stream  *discovery.StreamFeed
	started time.Time
	closers []func()
}

// Build opens storage and constructs the components described by cfg. cfg
// is assumed validated. Close releases everything Build acquired.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{Config: cfg, log: log, started: time.Now()}

	stores, cleanup, err := OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	a.closers = append(a.closers, cleanup)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	costBasis, err := ledger.ParseCostBasis(cfg.Account.CostBasis)
	if err != nil {
		return err
	}
	a.Ledger = ledger.New(ledger.Options{Store: a.Stores.Ledger, CostBasis: costBasis, Logger: a.log})
	if _, err := a.Ledger.Open(ctx, decimal.NewFromFloat(cfg.Account.OpeningBalance)); err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	a.Positions = position.NewAccessor(a.Ledger)

	a.Guard = safety.New(cfg.Safety, nil, a.log)
	history, err := a.Ledger.History(ctx, ledger.HistoryFilter{})
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	a.Guard.Restore(history)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = observability.NewMetrics("", a.Registry)

	if a.Execution, err = a.buildExecution(ctx); err != nil {
		return err
	}
	if a.Source, err = a.buildSource(); err != nil {
		return err
	}

	var oracle model.Oracle
	if cfg.Model.Path != "" {
		o, err := model.NewONNXOracle(cfg.Model.Path, cfg.Model.LibraryPath)
		if err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		a.closers = append(a.closers, o.Close)
		oracle = o
	}
	scorer := alpha.New(alpha.Options{Config: cfg.Alpha, Oracle: oracle, Closes: a.Stores.Prices, Logger: a.log})

	a.Exits = exit.New(exit.Options{Config: cfg.Exit, Store: a.Stores.Exits, Logger: a.log})

	a.Events = events.Noop{}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, a.log)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		a.Events = pub
	}
	a.closers = append(a.closers, func() { a.Events.Close() })

	a.Orchestrator = orchestrator.New(orchestrator.Options{
		Config:    cfg.Orchestrator,
		Sizing:    cfg.Sizing,
		Ledger:    a.Ledger,
		Positions: a.Positions,
		Feed:      a.Source,
		Pricer:    a.Source,
		Scorer:    scorer,
		Exits:     a.Exits,
		Execution: a.Execution,
		Guard:     a.Guard,
		Prices:    a.Stores.Prices,
		Events:    a.Events,
		Metrics:   a.Metrics,
		Logger:    a.log,
	})

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}
	a.Scheduler, err = schedule.New(schedule.Options{
		DailyResetCron: cfg.Schedule.DailyResetCron,
		SummaryCron:    cfg.Schedule.SummaryCron,
		Location:       loc,
		Guard:          a.Guard,
		Ledger:         a.Ledger,
		Positions:      a.Positions,
		Exits:          a.Exits,
		Events:         a.Events,
		Logger:         a.log,
	})
	return err
}

func (a *App) buildExecution(ctx context.Context) (execution.Client, error) {
	ec := a.Config.Execution
	if execution.Mode(ec.Mode) != execution.ModeLive {
		return execution.NewSimulated(execution.SimulatedOptions{
			Account: a.Ledger,
			Latency: ec.SimulatedLatency,
			Logger:  a.log,
		}), nil
	}

	opts := execution.LiveOptions{
		Gateway:      solana.NewHTTPClient(ec.GatewayURL),
		RPC:          solana.NewHTTPClient(ec.RPCURL),
		Wallet:       ec.Wallet,
		SlippageBps:  ec.SlippageBps,
		Commitment:   solana.Commitment(ec.Commitment),
		PollInterval: ec.PollInterval,
		Logger:       a.log,
	}
	if ec.WSURL != "" {
		ws, err := solana.NewWSClient(ctx, ec.WSURL, nil)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		a.closers = append(a.closers, func() { ws.Close() })
		opts.WS = ws
	}
	return execution.NewLive(opts)
}

func (a *App) buildSource() (discovery.Source, error) {
	dc := a.Config.Discovery

	var src discovery.Source
	switch dc.Kind {
	case config.FeedStatic:
		src = discovery.NewStaticFeed()
	case config.FeedHTTP:
		src = discovery.NewHTTPFeed(discovery.HTTPFeedOptions{
			BaseURL: dc.URL,
			Limit:   dc.Limit,
			Timeout: dc.Timeout,
			Logger:  a.log,
		})
	case config.FeedStream:
		a.stream = discovery.NewStreamFeed(discovery.StreamFeedOptions{
			URL:    dc.URL,
			MaxAge: dc.MaxAge,
			Logger: a.log,
		})
		src = a.stream
	default:
		return nil, fmt.Errorf("unknown discovery kind %q", dc.Kind)
	}

	if dc.Redis.Addr == "" {
		return src, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     dc.Redis.Addr,
		Password: dc.Redis.Password,
		DB:       dc.Redis.DB,
	})
	a.closers = append(a.closers, func() { rdb.Close() })
	return discovery.NewCachedFeed(discovery.CachedFeedOptions{
		Source:       src,
		Redis:        rdb,
		CandidateTTL: dc.CandidateTTL,
		PriceTTL:     dc.PriceTTL,
		Logger:       a.log,
	}), nil
}

// Run starts the scheduler and the stream consumer, then drives the trading
// loop until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()

	if a.stream != nil {
		go func() {
			if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Error("discovery stream stopped")
			}
		}()
	}

	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	err := a.Orchestrator.Run(ctx, orchestrator.NewIntervalTicker(a.Config.Orchestrator.TickInterval))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
