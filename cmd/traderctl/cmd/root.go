// Package cmd implements traderctl, the operator CLI that reads and
// maintains the trader's storage directly.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"solana-trader/internal/app"
	"solana-trader/internal/config"
	"solana-trader/internal/exit"
	"solana-trader/internal/ledger"
)

// rootConfig carries the persistent flags to every subcommand.
type rootConfig struct {
	configPath string
	verbose    bool
	asJSON     bool
}

// session is an open view of the configured storage.
type session struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	exits  *exit.Engine
	stores *app.Stores
	close  func()
}

func (rc *rootConfig) open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if rc.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	costBasis, err := ledger.ParseCostBasis(cfg.Account.CostBasis)
	if err != nil {
		cleanup()
		return nil, err
	}
	l := ledger.New(ledger.Options{Store: stores.Ledger, CostBasis: costBasis, Logger: logger})
	if _, err := l.Open(ctx, decimal.NewFromFloat(cfg.Account.OpeningBalance)); err != nil {
		cleanup()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &session{
		cfg:    cfg,
		ledger: l,
		exits:  exit.New(exit.Options{Config: cfg.Exit, Store: stores.Exits, Logger: logger}),
		stores: stores,
		close:  cleanup,
	}, nil
}

// New builds the command tree.
func New() *cobra.Command {
	rc := &rootConfig{}
	cmd := &cobra.Command{
		Use:   "traderctl",
		Short: "Inspect and maintain the trader's ledger and exit state",
		Long: `traderctl reads the same storage as the trader service.

Examples:
  traderctl history --asset <mint> --limit 50
  traderctl positions
  traderctl stats
  traderctl reset --yes`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&rc.configPath, "config", "c", "config.yaml", "path to YAML config")
	cmd.PersistentFlags().BoolVarP(&rc.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&rc.asJSON, "json", false, "print JSON instead of a table")

	cmd.AddCommand(
		newHistoryCmd(rc),
		newPositionsCmd(rc),
		newStatsCmd(rc),
		newResetCmd(rc),
		newMigrateCmd(rc),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return New().Execute()
}
