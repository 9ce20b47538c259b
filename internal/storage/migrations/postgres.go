package migrations

import (
	"context"

	"solana-trader/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded ledger and exit-state schema.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	_, err := Apply(ctx, PostgresFS, "postgres", WholeFile, func(ctx context.Context, sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	})
	return err
}
