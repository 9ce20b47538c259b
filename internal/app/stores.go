package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"solana-trader/internal/config"
	"solana-trader/internal/storage"
	chstore "solana-trader/internal/storage/clickhouse"
	"solana-trader/internal/storage/memory"
	"solana-trader/internal/storage/migrations"
	pgstore "solana-trader/internal/storage/postgres"
	"solana-trader/internal/storage/sqlite"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Ledger storage.LedgerStore
	Exits  storage.ExitStateStore
	Prices storage.PriceSnapshotStore
}

// OpenStores connects the configured backend and applies its migrations.
// Without a ClickHouse DSN price snapshots stay in memory for the run.
// The returned cleanup closes every connection.
func OpenStores(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (*Stores, func(), error) {
	var (
		stores  = &Stores{}
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Backend {
	case config.BackendMemory:
		stores.Ledger = memory.NewLedgerStore()
		stores.Exits = memory.NewExitStateStore()

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." && cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { db.Close() })
		stores.Ledger = sqlite.NewLedgerStore(db)
		stores.Exits = sqlite.NewExitStateStore(db)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.Ledger = pgstore.NewLedgerStore(pool)
		stores.Exits = pgstore.NewExitStateStore(pool)

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.Prices = chstore.NewPriceSnapshotStore(conn)
	} else {
		stores.Prices = memory.NewPriceSnapshotStore()
	}

	log.WithFields(logrus.Fields{
		"backend":    cfg.Backend,
		"clickhouse": cfg.ClickHouseDSN != "",
	}).Info("stores opened")
	return stores, cleanup, nil
}
