package migrations

import (
	"context"
	"database/sql"
)

// RunSqliteMigrations applies the embedded SQLite schema. The mattn driver
// runs a multi-statement script in one Exec.
func RunSqliteMigrations(ctx context.Context, db *sql.DB) error {
	_, err := Apply(ctx, SqliteFS, "sqlite", WholeFile, func(ctx context.Context, stmt string) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	})
	return err
}
